// Package shuffleread contains the core components of shuffleread, a library for reading one
// logical reduce partition of a distributed shuffle. This root package defines the types which
// are employed during the regular use of the library, as well as in the extension of the library
// with custom directories, transports and decoders, and is an excellent overview of its key
// concepts.
package shuffleread
