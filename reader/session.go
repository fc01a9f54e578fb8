// Package reader wires the read pipeline together: locate the blocks contributing to a
// partition range, fetch their bytes under the configured budgets, compose them into a
// decoded record sequence or raw segments, and hand the consumer a promptly cancellable
// iterator over the result.
package reader

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/go-dist/shuffleread"
	"github.com/go-dist/shuffleread/errors"
	"github.com/go-dist/shuffleread/internal/cancelmerge"
	"github.com/go-dist/shuffleread/internal/compose"
	"github.com/go-dist/shuffleread/internal/fetch"
	"github.com/go-dist/shuffleread/internal/locate"
	"github.com/go-dist/shuffleread/logging"
	uuid "github.com/gofrs/uuid"
)

// SessionOptions are the collaborators a ReadSession delegates to
type SessionOptions struct {
	Directory  shuffleread.LocationDirectory // [REQUIRED] resolves partition ranges to block locations
	Transport  shuffleread.FetchTransport    // [REQUIRED] retrieves remote block bytes
	Decoder    shuffleread.ColumnarDecoder   // decodes block bytes into records (required for Read)
	Framer     shuffleread.Framer            // splits raw block bytes into segments (required for ReadRaw)
	Sink       shuffleread.MetricsSink       // receives this session's metrics exactly once, when its iterator ends
	LocalStore shuffleread.LocalBlockStore   // serves local blocks when the local-fetch policy is enabled
}

// ReadSession reads one partition range of a distributed shuffle. A session is created
// per range, read at most once, and never reused.
type ReadSession struct {
	id      string
	rng     shuffleread.PartitionRange
	cfg     *shuffleread.ReadConfig
	opts    *SessionOptions
	logger  *logging.Logger
	metrics shuffleread.ReadMetrics
	merge   sync.Once
	started int32
}

// CreateReadSession is a factory for ReadSessions. The decoder's declared capabilities
// are checked here: aggregation and key ordering are deliberately unsupported, and a
// decoder declaring either is rejected before any locate or fetch work starts.
func CreateReadSession(rng shuffleread.PartitionRange, cfg *shuffleread.ReadConfig, opts *SessionOptions) (*ReadSession, error) {
	if opts == nil || opts.Directory == nil || opts.Transport == nil {
		return nil, fmt.Errorf("SessionOptions.Directory and SessionOptions.Transport are required")
	}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &shuffleread.ReadConfig{}
	}
	cfg = shuffleread.CloneReadConfig(cfg)
	shuffleread.EnsureDefaultReadConfigValues(cfg)
	if err := shuffleread.ValidateReadConfig(cfg); err != nil {
		return nil, err
	}
	if opts.Decoder != nil {
		info := opts.Decoder.Info()
		if info.HasAggregator {
			return nil, errors.UnsupportedFeatureError{Feature: "Aggregation across equal keys"}
		}
		if info.HasKeyOrdering {
			return nil, errors.UnsupportedFeatureError{Feature: "Ordering by a key comparator"}
		}
	}
	id, err := uuid.NewV4()
	if err != nil {
		log.Fatalf("failed to generate UUID: %v", err)
	}
	return &ReadSession{
		id:     id.String(),
		rng:    rng,
		cfg:    cfg,
		opts:   opts,
		logger: logging.CreateLogger(cfg.LogLevel),
	}, nil
}

// ID returns this session's unique id
func (s *ReadSession) ID() string {
	return s.id
}

// Metrics returns this session's ReadMetrics
func (s *ReadSession) Metrics() *shuffleread.ReadMetrics {
	return &s.metrics
}

// Read locates, fetches and decodes every block contributing to the session's partition
// range, returning one promptly cancellable record sequence. Records preserve per-block
// internal order; no order is guaranteed across blocks.
func (s *ReadSession) Read(ctx context.Context) (shuffleread.RecordIterator, error) {
	if s.opts.Decoder == nil {
		return nil, fmt.Errorf("SessionOptions.Decoder is required for decoded reads")
	}
	groups, err := s.start(ctx)
	if err != nil {
		return nil, err
	}
	blocks := fetch.Run(ctx, groups, s.opts.Transport, s.opts.LocalStore, s.cfg, &s.metrics, s.logger)
	records := compose.Records(blocks, s.opts.Decoder, s.cfg.Compression, &s.metrics)
	records.OnEnd(s.mergeMetrics)
	return cancelmerge.Records(ctx, records), nil
}

// ReadRaw locates and fetches every block contributing to the session's partition range,
// returning each block as a zero-copy file byte range where provable and as raw framed
// segments otherwise. No decompression or record decoding is performed.
func (s *ReadSession) ReadRaw(ctx context.Context) (shuffleread.SegmentIterator, error) {
	if s.opts.Framer == nil {
		return nil, fmt.Errorf("SessionOptions.Framer is required for raw reads")
	}
	groups, err := s.start(ctx)
	if err != nil {
		return nil, err
	}
	blocks := fetch.Run(ctx, groups, s.opts.Transport, s.opts.LocalStore, s.cfg, &s.metrics, s.logger)
	segments := compose.Segments(blocks, s.opts.Framer)
	segments.OnEnd(s.mergeMetrics)
	return cancelmerge.Segments(ctx, segments), nil
}

func (s *ReadSession) start(ctx context.Context) ([]shuffleread.LocatedBlocks, error) {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil, fmt.Errorf("ReadSession %s has already been read", s.id)
	}
	groups, err := locate.Locate(ctx, s.opts.Directory, s.rng, &s.metrics)
	if err != nil {
		return nil, err
	}
	s.logger.Logf(logging.InfoLevel, "Session %s reading %s from %d locations", s.id, s.rng.ToString(), len(groups))
	return groups, nil
}

// mergeMetrics merges this session's metrics into the task aggregate, exactly once,
// whether the session's iterator ends naturally or by cancellation
func (s *ReadSession) mergeMetrics() {
	s.merge.Do(func() {
		if s.opts.Sink != nil {
			s.opts.Sink.Merge(&s.metrics)
		}
		s.logger.Logf(logging.InfoLevel, "Session %s finished: %d records from %d blocks (%d bytes)", s.id, s.metrics.RecordsRead(), s.metrics.BlocksFetched(), s.metrics.BytesFetched())
	})
}
