package shuffleread

import "io"

// Location identifies the host which currently serves a set of shuffle blocks
type Location struct {
	Host string // hostname, compared against ReadConfig.LocalHost for the local-fetch policy
	Addr string // transport-specific address for remote fetches
}

// BlockDescriptor describes one unit of shuffled bytes written by one producer task for
// one partition. Descriptors are produced by the location directory and are read-only
// downstream of it.
type BlockDescriptor struct {
	BlockID  string
	SizeHint int64  // size of the block's bytes, used for in-flight budget accounting
	Checksum uint64 // xxhash64 of the block's bytes, or 0 when the writer recorded none
}

// LocatedBlocks groups the BlockDescriptors served by a single Location, in the order
// fetch requests against that location should be issued
type LocatedBlocks struct {
	Location Location
	Blocks   []BlockDescriptor
}

// FileByteRange is a provable zero-copy descriptor for a block: the block's bytes are
// exactly Length bytes of the file at Path starting at Offset, un-decompressed and
// not further wrapped. A FileByteRange attached to a spilled block remains valid until
// the owning session's iterator ends.
type FileByteRange struct {
	Path   string
	Offset int64
	Length int64
}

// RawBlockStream pairs a block id with its raw byte stream. The stream is owned
// exclusively by whichever stage currently holds it; ownership transfers forward and is
// never duplicated. Range is the zero-copy tag attached at construction time when the
// fetch layer can prove the stream is an unwrapped, disk-backed region, and is nil
// otherwise.
type RawBlockStream struct {
	BlockID string
	Stream  io.ReadCloser
	Range   *FileByteRange
}
