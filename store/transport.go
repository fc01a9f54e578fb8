package store

import (
	"context"
	"sync/atomic"

	"github.com/go-dist/shuffleread"
	"github.com/go-dist/shuffleread/errors"
)

// DiskTransport is a FetchTransport serving fetches out of a DiskStore. It stands in for
// a network transport on single-host runs, and lazily issues one store read per pull.
type DiskTransport struct {
	store      *DiskStore
	fetchCalls int64
}

// CreateDiskTransport is a factory for DiskTransports
func CreateDiskTransport(store *DiskStore) *DiskTransport {
	return &DiskTransport{store: store}
}

// Fetch returns an iterator issuing one store read per descriptor, in descriptor order
func (t *DiskTransport) Fetch(ctx context.Context, loc shuffleread.Location, blocks []shuffleread.BlockDescriptor) (shuffleread.BlockStreamIterator, error) {
	atomic.AddInt64(&t.fetchCalls, 1)
	return &diskBlockIterator{ctx: ctx, store: t.store, blocks: blocks}, nil
}

// FetchCalls returns the number of Fetch calls issued against this transport so far
func (t *DiskTransport) FetchCalls() int64 {
	return atomic.LoadInt64(&t.fetchCalls)
}

type diskBlockIterator struct {
	ctx    context.Context
	store  *DiskStore
	blocks []shuffleread.BlockDescriptor
	next   int
	onEnd  []func()
}

// HasNextBlock returns true iff any descriptors remain
func (it *diskBlockIterator) HasNextBlock() bool {
	if it.next < len(it.blocks) {
		return true
	}
	for _, f := range it.onEnd {
		f()
	}
	it.onEnd = nil
	return false
}

// NextBlock opens the next block's file and returns it as a raw stream
func (it *diskBlockIterator) NextBlock() (shuffleread.RawBlockStream, error) {
	if !it.HasNextBlock() {
		return shuffleread.RawBlockStream{}, errors.NoMoreBlocksError{}
	}
	if err := it.ctx.Err(); err != nil {
		return shuffleread.RawBlockStream{}, err
	}
	desc := it.blocks[it.next]
	it.next++
	f, _, err := it.store.Open(desc.BlockID)
	if err != nil {
		return shuffleread.RawBlockStream{}, err
	}
	return shuffleread.RawBlockStream{BlockID: desc.BlockID, Stream: f}, nil
}

// OnEnd registers a callback to run when iteration ends
func (it *diskBlockIterator) OnEnd(onEnd func()) {
	it.onEnd = append(it.onEnd, onEnd)
}
