package tlsbridge

import (
	"context"
)

// Transport
// a non-blocking byte channel. Every call either makes progress, reports
// zero progress with ErrWouldBlock, or fails fatally. A transport is owned
// by exactly one Stream for the connection's lifetime.
//
// Readiness registration is not part of the contract: the scheduler that
// retries ErrWouldBlock results decides how to learn about readiness.
type Transport interface {
	// TryRead
	// reads available bytes into p without blocking. Returns ErrWouldBlock
	// when nothing can be read yet and (0, io.EOF) when the peer closed
	// its write side.
	TryRead(p []byte) (n int, err error)
	// TryWrite
	// writes as much of p as the channel accepts without blocking. Returns
	// ErrWouldBlock when nothing was accepted.
	TryWrite(p []byte) (n int, err error)
	// Close
	// releases the channel. Pending bytes on the peer side stay readable.
	Close() (err error)
}

// Readiness
// an awaitable readiness source for a transport. It is consumed by
// AsyncStream to suspend between ErrWouldBlock retries; the synchronous
// core never touches it.
type Readiness interface {
	AwaitReadable(ctx context.Context) (err error)
	AwaitWritable(ctx context.Context) (err error)
}
