package objectstore

import (
	"bytes"
	"io"
	"sync"
)

// progressReader reports the furthest offset read so far. Backends that read
// the body twice (signing, then sending) still produce monotonic events.
type progressReader struct {
	mu       sync.Mutex
	r        *bytes.Reader
	total    int64
	reported int64
	fn       ProgressFunc
}

func newProgressReader(data []byte, fn ProgressFunc) *progressReader {
	return &progressReader{r: bytes.NewReader(data), total: int64(len(data)), fn: fn}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := p.r.Read(buf)
	p.advance(p.total - int64(p.r.Len()))
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.r.Seek(offset, whence)
}

// finish emits a final event for the full payload if one was not sent yet.
func (p *progressReader) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance(p.total)
}

func (p *progressReader) advance(pos int64) {
	if pos <= p.reported {
		return
	}
	p.reported = pos
	if p.fn != nil {
		p.fn(Progress{Sent: pos, Total: p.total})
	}
}

var _ io.ReadSeeker = (*progressReader)(nil)
