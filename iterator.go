package shuffleread

// BlockStreamIterator is a generalized interface for iterating over RawBlockStreams,
// regardless of where they come from. NextBlock transfers ownership of the returned
// stream to the caller, who must close it.
type BlockStreamIterator interface {
	HasNextBlock() bool
	NextBlock() (RawBlockStream, error)
	OnEnd(onEnd func())
}

// RecordIterator is a generalized interface for iterating over decoded Records
type RecordIterator interface {
	HasNextRecord() bool
	NextRecord() (Record, error)
	OnEnd(onEnd func())
}

// SegmentIterator is a generalized interface for iterating over RawSegments
type SegmentIterator interface {
	HasNextSegment() bool
	NextSegment() (RawSegment, error)
	OnEnd(onEnd func())
}

// ValueIterator iterates over the opaque values decoded from a single block's byte stream
type ValueIterator interface {
	HasNextValue() bool
	NextValue() ([]byte, error)
}

// Cancellable is implemented by iterators which can stop early, releasing every resource
// they hold rather than waiting for natural exhaustion
type Cancellable interface {
	Cancel()
}

// PromptlyCancellable marks iterators whose every pull already observes session
// cancellation. The outermost iterator handed to a consumer always satisfies this; a
// wrapper is only added when the underlying iterator does not.
type PromptlyCancellable interface {
	PromptlyCancellable() bool
}
