package shuffleread

import (
	"context"
	"io"
	"os"
)

// LocationDirectory resolves a partition range into the locations of its contributing
// blocks, grouped by serving location. Implementations must return a LocationNotFoundError
// when the stage's map output is unknown.
type LocationDirectory interface {
	// Resolve locates every block contributing to the partitions [startPartition, endPartition)
	Resolve(ctx context.Context, stageID string, startPartition int, endPartition int) ([]LocatedBlocks, error)
	// ResolveProducers locates blocks contributing to the partitions [startPartition, endPartition),
	// narrowed to those written by the producer tasks [startProducer, endProducer)
	ResolveProducers(ctx context.Context, stageID string, startPartition int, endPartition int, startProducer int, endProducer int) ([]LocatedBlocks, error)
}

// FetchTransport retrieves block bytes from a single location. The returned iterator must
// issue requests lazily, in descriptor order, one per pull, and must not wrap the returned
// streams beyond the raw transport framing - the session applies its own wrappers.
type FetchTransport interface {
	Fetch(ctx context.Context, loc Location, blocks []BlockDescriptor) (BlockStreamIterator, error)
}

// DecoderInfo describes the capabilities declared by a shuffle dependency. This core
// supports neither aggregation across equal keys nor ordering by a key comparator;
// sessions reject dependencies declaring either before any fetch work starts.
type DecoderInfo struct {
	HasAggregator  bool
	HasKeyOrdering bool
}

// ColumnarDecoder decodes a block's (already decompressed) byte stream into a sequence of
// opaque record values
type ColumnarDecoder interface {
	Info() DecoderInfo
	Decode(r io.Reader) ValueIterator
}

// Framer splits a block's raw (never decompressed) byte stream into framed segments
type Framer interface {
	Frames(r io.Reader) ValueIterator
}

// MetricsSink accepts this session's ReadMetrics. Merge is invoked exactly once per
// session, when the session's iterator ends or is cancelled; the session never reads
// metrics back from the sink.
type MetricsSink interface {
	Merge(m *ReadMetrics)
}

// LocalBlockStore serves block bytes from the local disk, for the local-fetch policy.
// Open returns the block's file positioned at the block's first byte, along with the
// block's length; the caller owns the returned handle.
type LocalBlockStore interface {
	Open(blockID string) (*os.File, int64, error)
}
