package bytebuffers

import (
	"errors"
	"io"
	"os"
)

var pagesize = os.Getpagesize()

var ErrTooLarge = errors.New("bytebuffers.Buffer: too large")

// Buffer
// a growable byte queue. Writes append at the tail, reads consume from the
// head. Peek and Discard give zero-copy access to the head, which is how
// partially accepted transport writes are retired without re-buffering.
type Buffer interface {
	Len() (n int)
	Cap() (n int)
	Peek(n int) (p []byte)
	Discard(n int)
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Reset()
}

func NewBuffer() Buffer {
	return NewBufferWithSize(pagesize)
}

func NewBufferWithSize(size int) Buffer {
	if size < 1 {
		size = pagesize
	}
	return &buffer{
		b: make([]byte, 0, size),
		r: 0,
	}
}

type buffer struct {
	b []byte
	r int
}

func (buf *buffer) Len() (n int) {
	n = len(buf.b) - buf.r
	return
}

func (buf *buffer) Cap() (n int) {
	n = cap(buf.b)
	return
}

func (buf *buffer) Peek(n int) (p []byte) {
	bLen := buf.Len()
	if n < 1 || bLen == 0 {
		return
	}
	if n > bLen {
		n = bLen
	}
	p = buf.b[buf.r : buf.r+n]
	return
}

func (buf *buffer) Discard(n int) {
	if n < 1 {
		return
	}
	if bLen := buf.Len(); n >= bLen {
		buf.Reset()
		return
	}
	buf.r += n
	return
}

func (buf *buffer) Read(p []byte) (n int, err error) {
	if buf.Len() == 0 {
		buf.Reset()
		err = io.EOF
		return
	}
	if len(p) == 0 {
		return
	}
	n = copy(p, buf.b[buf.r:])
	buf.r += n
	if buf.Len() == 0 {
		buf.Reset()
	}
	return
}

func (buf *buffer) Write(p []byte) (n int, err error) {
	pLen := len(p)
	if pLen == 0 {
		return
	}
	buf.slide(pLen)
	buf.b = append(buf.b, p...)
	n = pLen
	return
}

func (buf *buffer) Reset() {
	buf.b = buf.b[:0]
	buf.r = 0
}

// slide compacts consumed head space when appending would otherwise grow
// the underlying slice.
func (buf *buffer) slide(incoming int) {
	if buf.r == 0 {
		return
	}
	if len(buf.b)+incoming <= cap(buf.b) {
		return
	}
	n := copy(buf.b, buf.b[buf.r:])
	buf.b = buf.b[:n]
	buf.r = 0
}
