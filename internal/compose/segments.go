package compose

import (
	"github.com/go-dist/shuffleread"
	"github.com/go-dist/shuffleread/errors"
	"github.com/go-dist/shuffleread/internal/fastpath"
)

// segmentIterator yields each block either as a single zero-copy FileByteRange or as the
// block's framed byte regions, with no decompression and no record decoding
type segmentIterator struct {
	blocks     shuffleread.BlockStreamIterator
	framer     shuffleread.Framer
	frames     shuffleread.ValueIterator
	closeBlock func()
	pendingSeg *shuffleread.RawSegment
	pendingErr error
	done       bool
	onEnd      []func()
}

// Segments composes the raw-segment read mode over a sequence of fetched blocks. Blocks
// with a provable on-disk byte range skip the framer entirely.
func Segments(blocks shuffleread.BlockStreamIterator, framer shuffleread.Framer) shuffleread.SegmentIterator {
	return &segmentIterator{
		blocks: blocks,
		framer: framer,
	}
}

// HasNextSegment returns true iff a call to NextSegment will return a segment or an error
func (it *segmentIterator) HasNextSegment() bool {
	if it.done {
		return false
	}
	if it.pendingErr != nil || it.pendingSeg != nil {
		return true
	}
	for {
		if it.frames != nil {
			if it.frames.HasNextValue() {
				return true
			}
			it.closeCurrent()
		}
		if !it.blocks.HasNextBlock() {
			it.end()
			return false
		}
		blk, err := it.blocks.NextBlock()
		if err != nil {
			it.pendingErr = err
			return true
		}
		if rng, ok := fastpath.Extract(blk); ok {
			fastpath.Close(blk)
			r := rng
			it.pendingSeg = &shuffleread.RawSegment{Range: &r}
			return true
		}
		blockStream := blk.Stream
		it.frames = it.framer.Frames(blockStream)
		it.closeBlock = func() { blockStream.Close() }
	}
}

// NextSegment returns the next raw segment
func (it *segmentIterator) NextSegment() (shuffleread.RawSegment, error) {
	if !it.HasNextSegment() {
		return shuffleread.RawSegment{}, errors.NoMoreSegmentsError{}
	}
	if it.pendingErr != nil {
		err := it.pendingErr
		it.pendingErr = nil
		it.end()
		return shuffleread.RawSegment{}, err
	}
	if it.pendingSeg != nil {
		seg := *it.pendingSeg
		it.pendingSeg = nil
		return seg, nil
	}
	data, err := it.frames.NextValue()
	if err != nil {
		it.end()
		return shuffleread.RawSegment{}, err
	}
	return shuffleread.RawSegment{Data: data}, nil
}

// OnEnd registers a callback to run when iteration ends, naturally or otherwise
func (it *segmentIterator) OnEnd(onEnd func()) {
	it.onEnd = append(it.onEnd, onEnd)
}

// Cancel stops iteration and releases the current block and everything upstream
func (it *segmentIterator) Cancel() {
	it.end()
}

func (it *segmentIterator) closeCurrent() {
	if it.closeBlock != nil {
		it.closeBlock()
		it.closeBlock = nil
	}
	it.frames = nil
}

func (it *segmentIterator) end() {
	if it.done {
		return
	}
	it.done = true
	it.closeCurrent()
	if c, ok := it.blocks.(shuffleread.Cancellable); ok {
		c.Cancel()
	}
	for _, f := range it.onEnd {
		f()
	}
}
