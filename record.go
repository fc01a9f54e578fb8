package shuffleread

// PlaceholderKey is the constant key token shared by every record produced by a decoded
// read. The read path does not reconstruct real keys, so all records carry this token.
var PlaceholderKey = []byte{0}

// Record is one decoded unit of a reduce partition: an opaque value paired with the
// synthetic PlaceholderKey
type Record struct {
	Key   []byte
	Value []byte
}

// RawSegment is one unit of a raw-segment read: either a zero-copy FileByteRange or a
// framed in-memory segment. Exactly one of Range and Data is set.
type RawSegment struct {
	Range *FileByteRange
	Data  []byte
}
