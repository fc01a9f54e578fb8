package fetch

import (
	"io"
	"os"
	"sync"
)

// FileReader is a plain stream over a local file, reading from the handle's current
// position. The handle's live position is the authoritative read offset - earlier code
// may already have consumed bytes through it.
type FileReader struct {
	f *os.File
}

// CreateFileReader is a factory for FileReaders
func CreateFileReader(f *os.File) *FileReader {
	return &FileReader{f: f}
}

// Read reads from the underlying file
func (r *FileReader) Read(p []byte) (int, error) {
	return r.f.Read(p)
}

// Path returns the path of the underlying file
func (r *FileReader) Path() string {
	return r.f.Name()
}

// Offset returns the current read position of the underlying file handle
func (r *FileReader) Offset() (int64, error) {
	return r.f.Seek(0, io.SeekCurrent)
}

// Size returns the total size of the underlying file
func (r *FileReader) Size() (int64, error) {
	info, err := r.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Close closes the underlying file
func (r *FileReader) Close() error {
	return r.f.Close()
}

// LimitReader caps reads of a delegate stream at a remaining length
type LimitReader struct {
	delegate  io.Reader
	remaining int64
}

// CreateLimitReader is a factory for LimitReaders
func CreateLimitReader(delegate io.Reader, limit int64) *LimitReader {
	return &LimitReader{delegate: delegate, remaining: limit}
}

// Read reads from the delegate stream, never past the remaining length
func (r *LimitReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.delegate.Read(p)
	r.remaining -= int64(n)
	return n, err
}

// Remaining returns the number of bytes left before the limit is reached
func (r *LimitReader) Remaining() int64 {
	return r.remaining
}

// Delegate returns the stream this LimitReader caps
func (r *LimitReader) Delegate() io.Reader {
	return r.delegate
}

// Close closes the delegate stream, if it is closeable
func (r *LimitReader) Close() error {
	if c, ok := r.delegate.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ReleaseReader invokes a release hook exactly once when the stream is closed, after
// closing its delegate. The fetch layer uses the hook to return in-flight budget and
// drop held-resource accounting for the block.
type ReleaseReader struct {
	delegate io.Reader
	release  func()
	once     sync.Once
}

// CreateReleaseReader is a factory for ReleaseReaders
func CreateReleaseReader(delegate io.Reader, release func()) *ReleaseReader {
	return &ReleaseReader{delegate: delegate, release: release}
}

// Read reads from the delegate stream
func (r *ReleaseReader) Read(p []byte) (int, error) {
	return r.delegate.Read(p)
}

// Delegate returns the stream this ReleaseReader wraps
func (r *ReleaseReader) Delegate() io.Reader {
	return r.delegate
}

// Close closes the delegate stream and fires the release hook. Close is idempotent with
// respect to the hook.
func (r *ReleaseReader) Close() error {
	var err error
	if c, ok := r.delegate.(io.Closer); ok {
		err = c.Close()
	}
	r.once.Do(r.release)
	return err
}
