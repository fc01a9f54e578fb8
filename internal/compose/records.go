// Package compose turns fetched block streams into the consumer-facing sequences: decoded
// records, or raw framed segments with the zero-copy fast path applied where provable.
package compose

import (
	"io"

	"github.com/go-dist/shuffleread"
	"github.com/go-dist/shuffleread/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"
)

// recordIterator flattens every block's decoded values into one record sequence, in
// block-arrival order. Per-block internal order is preserved; no order is guaranteed
// across blocks.
type recordIterator struct {
	blocks      shuffleread.BlockStreamIterator
	decoder     shuffleread.ColumnarDecoder
	compression string
	metrics     *shuffleread.ReadMetrics
	values      shuffleread.ValueIterator
	closeBlock  func()
	pendingErr  error
	done        bool
	onEnd       []func()
}

// Records composes the decoded read mode over a sequence of fetched blocks. Every block's
// byte stream is decompressed per compression, decoded by decoder, and every produced
// value becomes one Record carrying the synthetic PlaceholderKey.
func Records(blocks shuffleread.BlockStreamIterator, decoder shuffleread.ColumnarDecoder, compression string, metrics *shuffleread.ReadMetrics) shuffleread.RecordIterator {
	return &recordIterator{
		blocks:      blocks,
		decoder:     decoder,
		compression: compression,
		metrics:     metrics,
	}
}

// HasNextRecord returns true iff a call to NextRecord will return a record or an error
func (it *recordIterator) HasNextRecord() bool {
	if it.done {
		return false
	}
	if it.pendingErr != nil {
		return true
	}
	for {
		if it.values != nil {
			if it.values.HasNextValue() {
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
		if err := it.openBlock(blk); err != nil {
			it.pendingErr = errors.BlockFetchError{BlockID: blk.BlockID, Cause: err}
			return true
		}
	}
}

// NextRecord returns the next decoded record, incrementing the session's record counter
// exactly once per record
func (it *recordIterator) NextRecord() (shuffleread.Record, error) {
	if !it.HasNextRecord() {
		return shuffleread.Record{}, errors.NoMoreRecordsError{}
	}
	if it.pendingErr != nil {
		err := it.pendingErr
		it.pendingErr = nil
		it.end()
		return shuffleread.Record{}, err
	}
	v, err := it.values.NextValue()
	if err != nil {
		it.end()
		return shuffleread.Record{}, err
	}
	it.metrics.AddRecordsRead(1)
	return shuffleread.Record{Key: shuffleread.PlaceholderKey, Value: v}, nil
}

// OnEnd registers a callback to run when iteration ends, naturally or otherwise
func (it *recordIterator) OnEnd(onEnd func()) {
	it.onEnd = append(it.onEnd, onEnd)
}

// Cancel stops iteration and releases the current block and everything upstream
func (it *recordIterator) Cancel() {
	it.end()
}

func (it *recordIterator) openBlock(blk shuffleread.RawBlockStream) error {
	var r io.Reader = blk.Stream
	var closeCodec func()
	switch it.compression {
	case shuffleread.CompressionLZ4:
		r = lz4.NewReader(r)
	case shuffleread.CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			blk.Stream.Close()
			return err
		}
		r = zr
		closeCodec = zr.Close
	}
	it.values = it.decoder.Decode(r)
	it.closeBlock = func() {
		if closeCodec != nil {
			closeCodec()
		}
		blk.Stream.Close()
	}
	return nil
}

func (it *recordIterator) closeCurrent() {
	if it.closeBlock != nil {
		it.closeBlock()
		it.closeBlock = nil
	}
	it.values = nil
}

func (it *recordIterator) end() {
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
