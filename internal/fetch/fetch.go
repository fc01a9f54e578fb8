package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"sync"
	"sync/atomic"
	"time"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/go-dist/shuffleread"
	"github.com/go-dist/shuffleread/errors"
	"github.com/go-dist/shuffleread/internal/util"
	"github.com/go-dist/shuffleread/logging"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"
)

type result struct {
	block shuffleread.RawBlockStream
	err   error
}

// scheduler runs the bounded fetch fan-out: one goroutine per location drains that
// location's FIFO of blocks under the shared byte and request budgets, pushing finished
// streams to a single results channel for the consumer to pull
type scheduler struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       *shuffleread.ReadConfig
	transport shuffleread.FetchTransport
	store     shuffleread.LocalBlockStore
	metrics   *shuffleread.ReadMetrics
	logger    *logging.Logger
	bytesSem  *semaphore.Weighted // the only mutable state shared across concurrent fetches
	reqSem    *semaphore.Weighted
	spills    *spillManager
	results   chan result
	held      int64
	wg        sync.WaitGroup
}

// Run starts fetching the given block groups under cfg's budgets and returns a lazily
// consumed iterator of RawBlockStreams. Block order across locations is whatever
// interleaving the scheduler produces; within one location, requests are issued in
// descriptor order. One failed block fails the whole iterator.
func Run(ctx context.Context, groups []shuffleread.LocatedBlocks, transport shuffleread.FetchTransport, store shuffleread.LocalBlockStore, cfg *shuffleread.ReadConfig, metrics *shuffleread.ReadMetrics, logger *logging.Logger) shuffleread.BlockStreamIterator {
	sctx, cancel := context.WithCancel(ctx)
	s := &scheduler{
		ctx:       sctx,
		cancel:    cancel,
		cfg:       cfg,
		transport: transport,
		store:     store,
		metrics:   metrics,
		logger:    logger,
		bytesSem:  semaphore.NewWeighted(cfg.MaxBytesInFlight),
		reqSem:    semaphore.NewWeighted(cfg.MaxConcurrentRequests),
		spills:    createSpillManager(cfg.TempDir),
		results:   make(chan result),
	}
	s.wg.Add(len(groups))
	for i := range groups {
		go s.runLocation(groups[i])
	}
	go func() {
		s.wg.Wait()
		close(s.results)
	}()
	return &blockStreamIterator{s: s}
}

// HeldResources returns the number of per-block resources currently held by streams the
// scheduler has created but which have not yet been closed
func (s *scheduler) HeldResources() int64 {
	return atomic.LoadInt64(&s.held)
}

func (s *scheduler) runLocation(g shuffleread.LocatedBlocks) {
	defer s.wg.Done()
	if len(g.Blocks) == 0 {
		return
	}
	if s.cfg.LocalFetch && s.store != nil && g.Location.Host == s.cfg.LocalHost {
		s.runLocalLocation(g)
		return
	}
	it, err := s.transport.Fetch(s.ctx, g.Location, g.Blocks)
	if err != nil {
		s.send(result{err: errors.BlockFetchError{BlockID: g.Blocks[0].BlockID, Cause: err}})
		return
	}
	slots := make(chan struct{}, s.cfg.MaxBlocksPerLocation)
	var inner sync.WaitGroup
	for i := range g.Blocks {
		desc := g.Blocks[i]
		select {
		case slots <- struct{}{}:
		case <-s.ctx.Done():
			inner.Wait()
			return
		}
		wait := time.Now()
		if err := s.reqSem.Acquire(s.ctx, 1); err != nil {
			<-slots
			break
		}
		weight := s.budgetWeight(desc.SizeHint)
		if err := s.bytesSem.Acquire(s.ctx, weight); err != nil {
			s.reqSem.Release(1)
			<-slots
			break
		}
		s.metrics.AddFetchWait(time.Since(wait))
		// issue the request in descriptor order; materialization proceeds concurrently
		blk, err := it.NextBlock()
		if err != nil {
			s.bytesSem.Release(weight)
			s.reqSem.Release(1)
			<-slots
			s.send(result{err: errors.BlockFetchError{BlockID: desc.BlockID, Cause: err}})
			break
		}
		inner.Add(1)
		go func(desc shuffleread.BlockDescriptor, blk shuffleread.RawBlockStream, weight int64) {
			defer inner.Done()
			defer func() { <-slots }()
			s.materialize(desc, blk, weight)
		}(desc, blk, weight)
	}
	inner.Wait()
}

// runLocalLocation serves blocks straight out of the local store, skipping the transport.
// Nothing is buffered in memory, so local reads do not consume in-flight byte budget.
func (s *scheduler) runLocalLocation(g shuffleread.LocatedBlocks) {
	for i := range g.Blocks {
		desc := g.Blocks[i]
		if s.ctx.Err() != nil {
			return
		}
		f, length, err := s.store.Open(desc.BlockID)
		if err != nil {
			s.send(result{err: errors.BlockFetchError{BlockID: desc.BlockID, Cause: err}})
			return
		}
		offset, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			f.Close()
			s.send(result{err: errors.BlockFetchError{BlockID: desc.BlockID, Cause: err}})
			return
		}
		s.metrics.AddBlockFetched(length)
		atomic.AddInt64(&s.held, 1)
		stream := CreateReleaseReader(CreateLimitReader(CreateFileReader(f), length), func() {
			atomic.AddInt64(&s.held, -1)
		})
		rng := &shuffleread.FileByteRange{Path: f.Name(), Offset: offset, Length: length}
		if !s.send(result{block: shuffleread.RawBlockStream{BlockID: desc.BlockID, Stream: stream, Range: rng}}) {
			stream.Close()
			return
		}
	}
}

// materialize drains one transport stream, either into memory or a spill file, and hands
// the finished stream to the consumer. The request slot is held until the transfer ends.
func (s *scheduler) materialize(desc shuffleread.BlockDescriptor, blk shuffleread.RawBlockStream, weight int64) {
	defer s.reqSem.Release(1)
	if desc.SizeHint > s.cfg.MaxRemoteBlockInMemory {
		s.spillBlock(desc, blk, weight)
		return
	}
	buf, err := ioutil.ReadAll(blk.Stream)
	if closeErr := blk.Stream.Close(); err == nil {
		err = closeErr
	}
	if err == nil && s.cfg.DetectCorruption && desc.Checksum != 0 && xxhash.Sum64(buf) != desc.Checksum {
		err = fmt.Errorf("Block data failed checksum verification")
	}
	if err != nil {
		s.bytesSem.Release(weight)
		s.send(result{err: errors.BlockFetchError{BlockID: desc.BlockID, Cause: err}})
		return
	}
	s.metrics.AddBlockFetched(int64(len(buf)))
	atomic.AddInt64(&s.held, 1)
	stream := CreateReleaseReader(bytes.NewReader(buf), func() {
		s.bytesSem.Release(weight)
		atomic.AddInt64(&s.held, -1)
	})
	if !s.send(result{block: shuffleread.RawBlockStream{BlockID: desc.BlockID, Stream: stream}}) {
		stream.Close()
	}
}

// spillBlock streams one oversized remote block to a temp file, then serves it from disk.
// The byte budget is only held while the transfer is in progress - once the bytes are on
// disk they are no longer in flight.
func (s *scheduler) spillBlock(desc shuffleread.BlockDescriptor, blk shuffleread.RawBlockStream, weight int64) {
	f, err := s.spills.create(desc.BlockID)
	if err != nil {
		blk.Stream.Close()
		s.bytesSem.Release(weight)
		s.send(result{err: errors.BlockFetchError{BlockID: desc.BlockID, Cause: err}})
		return
	}
	hasher := xxhash.New()
	n, err := io.Copy(io.MultiWriter(f, hasher), blk.Stream)
	if closeErr := blk.Stream.Close(); err == nil {
		err = closeErr
	}
	s.bytesSem.Release(weight)
	if err == nil && s.cfg.DetectCorruption && desc.Checksum != 0 && hasher.Sum64() != desc.Checksum {
		err = fmt.Errorf("Block data failed checksum verification")
	}
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		f.Close()
		s.send(result{err: errors.BlockFetchError{BlockID: desc.BlockID, Cause: err}})
		return
	}
	s.metrics.AddBlockFetched(n)
	atomic.AddInt64(&s.held, 1)
	stream := CreateReleaseReader(CreateLimitReader(CreateFileReader(f), n), func() {
		atomic.AddInt64(&s.held, -1)
	})
	rng := &shuffleread.FileByteRange{Path: f.Name(), Offset: 0, Length: n}
	if !s.send(result{block: shuffleread.RawBlockStream{BlockID: desc.BlockID, Stream: stream, Range: rng}}) {
		stream.Close()
	}
}

func (s *scheduler) send(r result) bool {
	select {
	case s.results <- r:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// budgetWeight clamps a block's budget weight so a block larger than the whole budget can
// still proceed, alone
func (s *scheduler) budgetWeight(size int64) int64 {
	if size < 1 {
		return 1
	}
	if size > s.cfg.MaxBytesInFlight {
		return s.cfg.MaxBytesInFlight
	}
	return size
}

// shutdown stops all fetch work, closes undelivered streams so their budgets release, and
// removes spill files once every worker has exited
func (s *scheduler) shutdown() {
	s.cancel()
	go func() {
		for r := range s.results {
			if r.block.Stream != nil {
				r.block.Stream.Close()
			}
		}
		if err := s.spills.cleanup(); err != nil {
			if merr, ok := err.(*multierror.Error); ok {
				s.logger.Logf(logging.WarnLevel, "Unable to remove spill files:\n%s", util.FormatMultiError(merr.Errors))
			} else {
				s.logger.Logf(logging.WarnLevel, "Unable to remove spill files: %v", err)
			}
		}
	}()
}

// blockStreamIterator is the single deterministic pull interface over the scheduler's
// concurrent fetch work
type blockStreamIterator struct {
	s     *scheduler
	lock  sync.Mutex
	next  *result
	done  bool
	onEnd []func()
}

// HasNextBlock returns true iff a call to NextBlock will return a stream or an error
func (it *blockStreamIterator) HasNextBlock() bool {
	it.lock.Lock()
	defer it.lock.Unlock()
	return it.hasNext()
}

func (it *blockStreamIterator) hasNext() bool {
	if it.done {
		return false
	}
	if it.next != nil {
		return true
	}
	r, ok := <-it.s.results
	if !ok {
		it.end()
		return false
	}
	it.next = &r
	return true
}

// NextBlock returns the next fetched block stream, transferring ownership of the stream
// to the caller. A fetch error for any block ends the whole iterator.
func (it *blockStreamIterator) NextBlock() (shuffleread.RawBlockStream, error) {
	it.lock.Lock()
	defer it.lock.Unlock()
	if !it.hasNext() {
		return shuffleread.RawBlockStream{}, errors.NoMoreBlocksError{}
	}
	r := it.next
	it.next = nil
	if r.err != nil {
		it.end()
		return shuffleread.RawBlockStream{}, r.err
	}
	return r.block, nil
}

// OnEnd registers a callback to run when iteration ends, naturally or otherwise
func (it *blockStreamIterator) OnEnd(onEnd func()) {
	it.lock.Lock()
	defer it.lock.Unlock()
	it.onEnd = append(it.onEnd, onEnd)
}

// Cancel stops all fetch work and releases every resource the scheduler still holds
func (it *blockStreamIterator) Cancel() {
	it.lock.Lock()
	defer it.lock.Unlock()
	it.end()
}

func (it *blockStreamIterator) end() {
	if it.done {
		return
	}
	it.done = true
	if it.next != nil {
		if it.next.block.Stream != nil {
			it.next.block.Stream.Close()
		}
		it.next = nil
	}
	it.s.shutdown()
	for _, f := range it.onEnd {
		f()
	}
}
