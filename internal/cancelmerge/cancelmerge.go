// Package cancelmerge guarantees that the outermost sequence handed to a consumer is
// promptly cancellable: every pull observes the session context, and cancellation releases
// all held resources within one pull rather than after draining internal buffers.
package cancelmerge

import (
	"context"

	"github.com/go-dist/shuffleread"
	"github.com/go-dist/shuffleread/errors"
)

// Records wraps a RecordIterator so every pull observes ctx. If the iterator already
// guarantees prompt cancellation, it is returned unwrapped.
func Records(ctx context.Context, it shuffleread.RecordIterator) shuffleread.RecordIterator {
	if p, ok := it.(shuffleread.PromptlyCancellable); ok && p.PromptlyCancellable() {
		return it
	}
	return &cancellableRecords{ctx: ctx, it: it}
}

// Segments wraps a SegmentIterator so every pull observes ctx. If the iterator already
// guarantees prompt cancellation, it is returned unwrapped.
func Segments(ctx context.Context, it shuffleread.SegmentIterator) shuffleread.SegmentIterator {
	if p, ok := it.(shuffleread.PromptlyCancellable); ok && p.PromptlyCancellable() {
		return it
	}
	return &cancellableSegments{ctx: ctx, it: it}
}

type cancellableRecords struct {
	ctx       context.Context
	it        shuffleread.RecordIterator
	cancelled bool
}

// HasNextRecord checks the session context before consulting the underlying iterator.
// Cancellation is not an error - the sequence simply ends.
func (c *cancellableRecords) HasNextRecord() bool {
	if c.cancelled {
		return false
	}
	if c.ctx.Err() != nil {
		c.release()
		return false
	}
	return c.it.HasNextRecord()
}

// NextRecord returns the next record, or ends the sequence if the session was cancelled
func (c *cancellableRecords) NextRecord() (shuffleread.Record, error) {
	if c.cancelled {
		return shuffleread.Record{}, errors.NoMoreRecordsError{}
	}
	if c.ctx.Err() != nil {
		c.release()
		return shuffleread.Record{}, errors.NoMoreRecordsError{}
	}
	return c.it.NextRecord()
}

// OnEnd registers a callback on the underlying iterator
func (c *cancellableRecords) OnEnd(onEnd func()) {
	c.it.OnEnd(onEnd)
}

// Cancel stops iteration and releases the underlying iterator's resources
func (c *cancellableRecords) Cancel() {
	c.release()
}

// PromptlyCancellable reports that every pull of this iterator observes cancellation
func (c *cancellableRecords) PromptlyCancellable() bool {
	return true
}

func (c *cancellableRecords) release() {
	if c.cancelled {
		return
	}
	c.cancelled = true
	if u, ok := c.it.(shuffleread.Cancellable); ok {
		u.Cancel()
	}
}

type cancellableSegments struct {
	ctx       context.Context
	it        shuffleread.SegmentIterator
	cancelled bool
}

// HasNextSegment checks the session context before consulting the underlying iterator
func (c *cancellableSegments) HasNextSegment() bool {
	if c.cancelled {
		return false
	}
	if c.ctx.Err() != nil {
		c.release()
		return false
	}
	return c.it.HasNextSegment()
}

// NextSegment returns the next segment, or ends the sequence if the session was cancelled
func (c *cancellableSegments) NextSegment() (shuffleread.RawSegment, error) {
	if c.cancelled {
		return shuffleread.RawSegment{}, errors.NoMoreSegmentsError{}
	}
	if c.ctx.Err() != nil {
		c.release()
		return shuffleread.RawSegment{}, errors.NoMoreSegmentsError{}
	}
	return c.it.NextSegment()
}

// OnEnd registers a callback on the underlying iterator
func (c *cancellableSegments) OnEnd(onEnd func()) {
	c.it.OnEnd(onEnd)
}

// Cancel stops iteration and releases the underlying iterator's resources
func (c *cancellableSegments) Cancel() {
	c.release()
}

// PromptlyCancellable reports that every pull of this iterator observes cancellation
func (c *cancellableSegments) PromptlyCancellable() bool {
	return true
}

func (c *cancellableSegments) release() {
	if c.cancelled {
		return
	}
	c.cancelled = true
	if u, ok := c.it.(shuffleread.Cancellable); ok {
		u.Cancel()
	}
}
