package reader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"testing"

	"github.com/go-dist/shuffleread"
	"github.com/go-dist/shuffleread/errors"
	"github.com/go-dist/shuffleread/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// lineDecoder decodes block bytes as newline-separated values
type lineDecoder struct {
	info shuffleread.DecoderInfo
}

func (d *lineDecoder) Info() shuffleread.DecoderInfo {
	return d.info
}

func (d *lineDecoder) Decode(r io.Reader) shuffleread.ValueIterator {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return &sliceValues{err: err}
	}
	var vals [][]byte
	for _, v := range bytes.Split(data, []byte("\n")) {
		if len(v) > 0 {
			vals = append(vals, v)
		}
	}
	return &sliceValues{vals: vals}
}

type sliceValues struct {
	vals [][]byte
	next int
	err  error
}

func (it *sliceValues) HasNextValue() bool {
	return it.err != nil || it.next < len(it.vals)
}

func (it *sliceValues) NextValue() ([]byte, error) {
	if it.err != nil {
		err := it.err
		it.err = nil
		return nil, err
	}
	if it.next >= len(it.vals) {
		return nil, errors.NoMoreRecordsError{}
	}
	v := it.vals[it.next]
	it.next++
	return v, nil
}

// wholeFramer yields a block's entire byte stream as one framed segment
type wholeFramer struct{}

func (f *wholeFramer) Frames(r io.Reader) shuffleread.ValueIterator {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return &sliceValues{err: err}
	}
	return &sliceValues{vals: [][]byte{data}}
}

type countingSink struct {
	merges  int
	records int64
}

func (s *countingSink) Merge(m *shuffleread.ReadMetrics) {
	s.merges++
	s.records = m.RecordsRead()
}

type sessionFixture struct {
	store     *store.DiskStore
	dir       *store.MemoryDirectory
	transport *store.DiskTransport
	sink      *countingSink
}

func createSessionFixture(t *testing.T) *sessionFixture {
	ds, err := store.CreateDiskStore(t.TempDir())
	require.Nil(t, err)
	return &sessionFixture{
		store:     ds,
		dir:       store.CreateMemoryDirectory(),
		transport: store.CreateDiskTransport(ds),
		sink:      &countingSink{},
	}
}

func (fx *sessionFixture) addBlock(t *testing.T, stage string, partition int, producer int, host string, blockID string, data []byte) {
	desc, err := fx.store.Put(blockID, data)
	require.Nil(t, err)
	fx.dir.Add(stage, partition, producer, shuffleread.Location{Host: host}, desc)
}

func (fx *sessionFixture) options(decoder shuffleread.ColumnarDecoder, framer shuffleread.Framer) *SessionOptions {
	return &SessionOptions{
		Directory:  fx.dir,
		Transport:  fx.transport,
		Decoder:    decoder,
		Framer:     framer,
		Sink:       fx.sink,
		LocalStore: fx.store,
	}
}

func TestReadSessionEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := createSessionFixture(t)
	// three blocks of exactly 10, 5 and 20 bytes at one location
	fx.addBlock(t, "stage-0", 0, 0, "remote-1", "b0", []byte("aa\nbb\ncc\nd"))
	fx.addBlock(t, "stage-0", 0, 1, "remote-1", "b1", []byte("e\nff\n"))
	fx.addBlock(t, "stage-0", 0, 2, "remote-1", "b2", []byte("ggggg\nhhhh\niiii\njjjj"))
	cfg := &shuffleread.ReadConfig{
		MaxBytesInFlight:      15,
		MaxConcurrentRequests: 2,
		MaxBlocksPerLocation:  2,
		DetectCorruption:      true,
		TempDir:               t.TempDir(),
	}
	session, err := CreateReadSession(shuffleread.CreatePartitionRange("stage-0", 0, 1), cfg, fx.options(&lineDecoder{}, nil))
	require.Nil(t, err)
	it, err := session.Read(context.Background())
	require.Nil(t, err)
	var got []string
	for it.HasNextRecord() {
		rec, err := it.NextRecord()
		require.Nil(t, err)
		require.Equal(t, shuffleread.PlaceholderKey, rec.Key)
		got = append(got, string(rec.Value))
	}
	// every block's records are present, and per-block internal order is preserved
	require.Len(t, got, 10)
	position := make(map[string]int)
	for i, v := range got {
		position[v] = i
	}
	for _, block := range [][]string{
		{"aa", "bb", "cc", "d"},
		{"e", "ff"},
		{"ggggg", "hhhh", "iiii", "jjjj"},
	} {
		for i := 1; i < len(block); i++ {
			require.Contains(t, position, block[i-1])
			require.Contains(t, position, block[i])
			require.Less(t, position[block[i-1]], position[block[i]])
		}
	}
	require.Equal(t, int64(10), session.Metrics().RecordsRead())
	require.Equal(t, int64(3), session.Metrics().BlocksFetched())
	require.Equal(t, int64(35), session.Metrics().BytesFetched())
	// one location means one transport call, and the metrics merged exactly once
	require.Equal(t, int64(1), fx.transport.FetchCalls())
	require.Equal(t, 1, fx.sink.merges)
	require.Equal(t, int64(10), fx.sink.records)
}

func TestReadSessionRejectsAggregatingDependency(t *testing.T) {
	fx := createSessionFixture(t)
	fx.addBlock(t, "stage-0", 0, 0, "remote-1", "b0", []byte("a"))
	_, err := CreateReadSession(
		shuffleread.CreatePartitionRange("stage-0", 0, 1), nil,
		fx.options(&lineDecoder{info: shuffleread.DecoderInfo{HasAggregator: true}}, nil))
	require.NotNil(t, err)
	require.IsType(t, errors.UnsupportedFeatureError{}, err)
	_, err = CreateReadSession(
		shuffleread.CreatePartitionRange("stage-0", 0, 1), nil,
		fx.options(&lineDecoder{info: shuffleread.DecoderInfo{HasKeyOrdering: true}}, nil))
	require.NotNil(t, err)
	require.IsType(t, errors.UnsupportedFeatureError{}, err)
	// rejection happens before any fetch work
	require.Equal(t, int64(0), fx.transport.FetchCalls())
}

func TestReadSessionRejectsOneSidedProducerRange(t *testing.T) {
	fx := createSessionFixture(t)
	oneSided := []shuffleread.PartitionRange{
		shuffleread.CreateProducerPartitionRange("stage-0", 0, 1, 1, shuffleread.NoProducer),
		shuffleread.CreateProducerPartitionRange("stage-0", 0, 1, shuffleread.NoProducer, 3),
	}
	for _, rng := range oneSided {
		_, err := CreateReadSession(rng, nil, fx.options(&lineDecoder{}, nil))
		require.NotNil(t, err)
		require.IsType(t, errors.InvalidRangeError{}, err)
	}
	require.Equal(t, int64(0), fx.transport.FetchCalls())
}

func TestReadSessionProducerNarrowedRead(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := createSessionFixture(t)
	fx.addBlock(t, "stage-0", 0, 0, "remote-1", "b0", []byte("a"))
	fx.addBlock(t, "stage-0", 0, 1, "remote-1", "b1", []byte("b"))
	fx.addBlock(t, "stage-0", 0, 2, "remote-1", "b2", []byte("c"))
	session, err := CreateReadSession(
		shuffleread.CreateProducerPartitionRange("stage-0", 0, 1, 1, 2), nil,
		fx.options(&lineDecoder{}, nil))
	require.Nil(t, err)
	it, err := session.Read(context.Background())
	require.Nil(t, err)
	var got []string
	for it.HasNextRecord() {
		rec, err := it.NextRecord()
		require.Nil(t, err)
		got = append(got, string(rec.Value))
	}
	require.Equal(t, []string{"b"}, got)
}

func TestReadSessionUnknownStage(t *testing.T) {
	fx := createSessionFixture(t)
	session, err := CreateReadSession(shuffleread.CreatePartitionRange("stage-9", 0, 1), nil, fx.options(&lineDecoder{}, nil))
	require.Nil(t, err)
	_, err = session.Read(context.Background())
	require.NotNil(t, err)
	require.IsType(t, errors.LocationNotFoundError{}, err)
}

func TestReadSessionReadsAtMostOnce(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := createSessionFixture(t)
	fx.addBlock(t, "stage-0", 0, 0, "remote-1", "b0", []byte("a"))
	session, err := CreateReadSession(shuffleread.CreatePartitionRange("stage-0", 0, 1), nil, fx.options(&lineDecoder{}, nil))
	require.Nil(t, err)
	it, err := session.Read(context.Background())
	require.Nil(t, err)
	for it.HasNextRecord() {
		_, err := it.NextRecord()
		require.Nil(t, err)
	}
	_, err = session.Read(context.Background())
	require.NotNil(t, err)
}

func TestReadSessionRequiresCollaborators(t *testing.T) {
	fx := createSessionFixture(t)
	_, err := CreateReadSession(shuffleread.CreatePartitionRange("stage-0", 0, 1), nil, nil)
	require.NotNil(t, err)
	_, err = CreateReadSession(shuffleread.CreatePartitionRange("stage-0", 0, 1), nil, &SessionOptions{Directory: fx.dir})
	require.NotNil(t, err)
	session, err := CreateReadSession(shuffleread.CreatePartitionRange("stage-0", 0, 1), nil, fx.options(nil, nil))
	require.Nil(t, err)
	_, err = session.Read(context.Background())
	require.NotNil(t, err)
	_, err = session.ReadRaw(context.Background())
	require.NotNil(t, err)
}

func TestReadSessionCancellationStopsPromptly(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := createSessionFixture(t)
	for i := 0; i < 50; i++ {
		fx.addBlock(t, "stage-0", 0, i, "remote-1", fmt.Sprintf("b%d", i), []byte("v0\nv1\nv2\n"))
	}
	cfg := &shuffleread.ReadConfig{
		MaxBytesInFlight:      18,
		MaxConcurrentRequests: 2,
		MaxBlocksPerLocation:  2,
		TempDir:               t.TempDir(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	session, err := CreateReadSession(shuffleread.CreatePartitionRange("stage-0", 0, 1), cfg, fx.options(&lineDecoder{}, nil))
	require.Nil(t, err)
	it, err := session.Read(ctx)
	require.Nil(t, err)
	for i := 0; i < 4; i++ {
		require.True(t, it.HasNextRecord())
		_, err := it.NextRecord()
		require.Nil(t, err)
	}
	cancel()
	// cancellation ends the sequence within one pull, without error
	require.False(t, it.HasNextRecord())
	_, err = it.NextRecord()
	require.IsType(t, errors.NoMoreRecordsError{}, err)
	// metrics still merge exactly once on a cancelled session
	require.Equal(t, 1, fx.sink.merges)
	require.True(t, fx.sink.records < 150)
}

func TestReadSessionRawModeMixedRoutes(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := createSessionFixture(t)
	localData := []byte("local block payload")
	remoteData := []byte("remote block payload")
	fx.addBlock(t, "stage-0", 0, 0, "worker-1", "b-local", localData)
	fx.addBlock(t, "stage-0", 0, 1, "remote-1", "b-remote", remoteData)
	cfg := &shuffleread.ReadConfig{
		LocalFetch: true,
		LocalHost:  "worker-1",
		TempDir:    t.TempDir(),
	}
	session, err := CreateReadSession(shuffleread.CreatePartitionRange("stage-0", 0, 1), cfg, fx.options(nil, &wholeFramer{}))
	require.Nil(t, err)
	it, err := session.ReadRaw(context.Background())
	require.Nil(t, err)
	var ranges, framed [][]byte
	for it.HasNextSegment() {
		seg, err := it.NextSegment()
		require.Nil(t, err)
		if seg.Range != nil {
			// a local block takes the zero-copy route: re-read the bytes from disk
			f, err := os.Open(seg.Range.Path)
			require.Nil(t, err)
			buf := make([]byte, seg.Range.Length)
			_, err = f.ReadAt(buf, seg.Range.Offset)
			require.Nil(t, err)
			require.Nil(t, f.Close())
			ranges = append(ranges, buf)
		} else {
			framed = append(framed, seg.Data)
		}
	}
	require.Len(t, ranges, 1)
	require.Equal(t, localData, ranges[0])
	require.Len(t, framed, 1)
	require.Equal(t, remoteData, framed[0])
	require.Equal(t, 1, fx.sink.merges)
}
