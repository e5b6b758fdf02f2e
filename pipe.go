package tlsbridge

import (
	"context"
	"io"
	"sync"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/tlsbridge/pkg/bytebuffers"
)

const DefaultPipeCapacity = 256 * 1024

var errPipeClosed = errors.Define("tlsbridge: pipe closed")

type PipeOption func(capacity *int)

// WithPipeCapacity
// bounds each direction's in-flight bytes. A capacity of 1 forces one-byte
// transfers, which is handy for fragmentation tests.
func WithPipeCapacity(n int) PipeOption {
	return func(capacity *int) {
		if n > 0 {
			*capacity = n
		}
	}
}

// Pipe
// an in-memory duplex transport pair. Each endpoint implements Transport
// and Readiness; what one endpoint writes the other reads. Both ends are
// safe to drive from different goroutines.
func Pipe(options ...PipeOption) (a *PipeTransport, b *PipeTransport) {
	capacity := DefaultPipeCapacity
	for _, option := range options {
		option(&capacity)
	}
	ab := newPipeHalf(capacity)
	ba := newPipeHalf(capacity)
	a = &PipeTransport{rd: ba, wr: ab}
	b = &PipeTransport{rd: ab, wr: ba}
	return
}

type PipeTransport struct {
	rd *pipeHalf
	wr *pipeHalf
}

func (pipe *PipeTransport) TryRead(p []byte) (n int, err error) {
	n, err = pipe.rd.read(p)
	return
}

func (pipe *PipeTransport) TryWrite(p []byte) (n int, err error) {
	n, err = pipe.wr.write(p)
	return
}

func (pipe *PipeTransport) Close() (err error) {
	pipe.wr.close()
	pipe.rd.close()
	return
}

func (pipe *PipeTransport) AwaitReadable(ctx context.Context) (err error) {
	err = pipe.rd.awaitReadable(ctx)
	return
}

func (pipe *PipeTransport) AwaitWritable(ctx context.Context) (err error) {
	err = pipe.wr.awaitWritable(ctx)
	return
}

func newPipeHalf(capacity int) *pipeHalf {
	return &pipeHalf{
		buf:      bytebuffers.NewBuffer(),
		capacity: capacity,
		notify:   make(chan struct{}),
	}
}

// pipeHalf is one direction of the pair: a bounded byte queue plus a
// broadcast channel replaced on every state change.
type pipeHalf struct {
	mu       sync.Mutex
	buf      bytebuffers.Buffer
	capacity int
	closed   bool
	notify   chan struct{}
}

func (half *pipeHalf) broadcast() {
	close(half.notify)
	half.notify = make(chan struct{})
}

func (half *pipeHalf) read(p []byte) (n int, err error) {
	half.mu.Lock()
	defer half.mu.Unlock()
	if half.buf.Len() == 0 {
		if half.closed {
			err = io.EOF
			return
		}
		err = errors.From(ErrWouldBlock)
		return
	}
	n, _ = half.buf.Read(p)
	half.broadcast()
	return
}

func (half *pipeHalf) write(p []byte) (n int, err error) {
	half.mu.Lock()
	defer half.mu.Unlock()
	if half.closed {
		err = errors.From(errPipeClosed)
		return
	}
	room := half.capacity - half.buf.Len()
	if room < 1 {
		err = errors.From(ErrWouldBlock)
		return
	}
	if len(p) > room {
		p = p[:room]
	}
	n, _ = half.buf.Write(p)
	half.broadcast()
	return
}

func (half *pipeHalf) close() {
	half.mu.Lock()
	defer half.mu.Unlock()
	if half.closed {
		return
	}
	half.closed = true
	half.broadcast()
}

func (half *pipeHalf) awaitReadable(ctx context.Context) (err error) {
	for {
		half.mu.Lock()
		if half.buf.Len() > 0 || half.closed {
			half.mu.Unlock()
			return
		}
		ch := half.notify
		half.mu.Unlock()
		select {
		case <-ctx.Done():
			err = ctx.Err()
			return
		case <-ch:
		}
	}
}

func (half *pipeHalf) awaitWritable(ctx context.Context) (err error) {
	for {
		half.mu.Lock()
		if half.buf.Len() < half.capacity || half.closed {
			half.mu.Unlock()
			return
		}
		ch := half.notify
		half.mu.Unlock()
		select {
		case <-ctx.Done():
			err = ctx.Err()
			return
		case <-ch:
		}
	}
}
