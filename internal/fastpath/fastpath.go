// Package fastpath recovers the raw on-disk byte range of a fetched block so downstream
// consumers can read it directly, without going back through the generic stream
// abstraction. Extraction only trusts streams the fetch layer tagged as file-backed at
// construction time, and re-verifies the wrapper chain before honouring the tag, so any
// stream that was re-wrapped after tagging cleanly loses the fast path.
package fastpath

import (
	"github.com/go-dist/shuffleread"
	"github.com/go-dist/shuffleread/internal/fetch"
)

// Extract attempts to prove that a RawBlockStream is nothing more than a byte range of a
// local file, returning that range. The proof requires the exact chain the fetch layer
// builds for disk-backed blocks: a release wrapper, optionally a limit wrapper, then a
// plain file stream. Any other shape returns false - fallback, never an error.
func Extract(b shuffleread.RawBlockStream) (shuffleread.FileByteRange, bool) {
	if b.Range == nil {
		return shuffleread.FileByteRange{}, false
	}
	rr, ok := b.Stream.(*fetch.ReleaseReader)
	if !ok {
		return shuffleread.FileByteRange{}, false
	}
	inner := rr.Delegate()
	limit := int64(-1)
	if lr, ok := inner.(*fetch.LimitReader); ok {
		limit = lr.Remaining()
		inner = lr.Delegate()
	}
	fr, ok := inner.(*fetch.FileReader)
	if !ok {
		return shuffleread.FileByteRange{}, false
	}
	// the live handle position is authoritative: bytes may already have been consumed
	// through the generic stream before extraction was attempted
	offset, err := fr.Offset()
	if err != nil {
		return shuffleread.FileByteRange{}, false
	}
	size, err := fr.Size()
	if err != nil {
		return shuffleread.FileByteRange{}, false
	}
	remaining := size - offset
	if limit >= 0 {
		if limit > remaining {
			return shuffleread.FileByteRange{}, false
		}
		remaining = limit
	}
	return shuffleread.FileByteRange{Path: fr.Path(), Offset: offset, Length: remaining}, true
}

// Close releases the stream a successful extraction came from. The byte range refers to
// the file on disk, which outlives the stream, so the stream itself is no longer needed.
func Close(b shuffleread.RawBlockStream) error {
	return b.Stream.Close()
}
