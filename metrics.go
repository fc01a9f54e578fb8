package shuffleread

import (
	"sync/atomic"
	"time"
)

// ReadMetrics tracks monotonically-increasing counters for one read session. Counters are
// safe to increment from concurrent fetch operations; RecordsRead is incremented exactly
// once per produced record, and fetch counters at most once per fetch.
type ReadMetrics struct {
	recordsRead    int64
	blocksFetched  int64
	bytesFetched   int64
	locateNanos    int64
	fetchWaitNanos int64
}

// AddRecordsRead adds to the count of records produced by decoded reads
func (m *ReadMetrics) AddRecordsRead(n int64) {
	atomic.AddInt64(&m.recordsRead, n)
}

// RecordsRead returns the number of records produced so far
func (m *ReadMetrics) RecordsRead() int64 {
	return atomic.LoadInt64(&m.recordsRead)
}

// AddBlockFetched records the completion of one block fetch of n bytes
func (m *ReadMetrics) AddBlockFetched(n int64) {
	atomic.AddInt64(&m.blocksFetched, 1)
	atomic.AddInt64(&m.bytesFetched, n)
}

// BlocksFetched returns the number of block fetches completed so far
func (m *ReadMetrics) BlocksFetched() int64 {
	return atomic.LoadInt64(&m.blocksFetched)
}

// BytesFetched returns the total bytes fetched so far
func (m *ReadMetrics) BytesFetched() int64 {
	return atomic.LoadInt64(&m.bytesFetched)
}

// SetLocateTime records the duration of the locate call
func (m *ReadMetrics) SetLocateTime(d time.Duration) {
	atomic.StoreInt64(&m.locateNanos, d.Nanoseconds())
}

// LocateNanos returns the duration of the locate call, in nanoseconds
func (m *ReadMetrics) LocateNanos() int64 {
	return atomic.LoadInt64(&m.locateNanos)
}

// AddFetchWait adds time spent waiting for fetch budgets or fetch completion
func (m *ReadMetrics) AddFetchWait(d time.Duration) {
	atomic.AddInt64(&m.fetchWaitNanos, d.Nanoseconds())
}

// FetchWaitNanos returns the total time spent waiting on fetch work, in nanoseconds
func (m *ReadMetrics) FetchWaitNanos() int64 {
	return atomic.LoadInt64(&m.fetchWaitNanos)
}
