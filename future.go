package tlsbridge

import (
	"context"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/rxp"
	"github.com/brickingsoft/rxp/async"
)

var (
	errNilStream    = errors.Define("tlsbridge: stream is nil")
	errNilReadiness = errors.Define("tlsbridge: readiness is nil")
)

// AsyncStream
// a future-returning facade over a Stream for callers that prefer rio
// style asynchronous programming to driving ErrWouldBlock retries by hand.
// Each operation pumps the synchronous core and suspends on the supplied
// Readiness between retries; promise handlers run on rxp executors owned
// by the facade.
//
// The core's single-owner rule stands: operations of one AsyncStream must
// not overlap in flight.
type AsyncStream struct {
	ctx       context.Context
	cancel    context.CancelFunc
	stream    *Stream
	ready     Readiness
	executors rxp.Executors
}

// NewAsyncStream
// wraps stream. ready is the transport's readiness source, e.g. the
// PipeTransport endpoint itself or the caller's poller binding.
func NewAsyncStream(ctx context.Context, stream *Stream, ready Readiness, options ...rxp.Option) (as *AsyncStream, err error) {
	if stream == nil {
		err = errors.From(errNilStream)
		return
	}
	if ready == nil {
		err = errors.From(errNilReadiness)
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	executors, execErr := rxp.New(options...)
	if execErr != nil {
		err = execErr
		return
	}
	ctx = rxp.With(ctx, executors)
	ctx, cancel := context.WithCancel(ctx)
	as = &AsyncStream{
		ctx:       ctx,
		cancel:    cancel,
		stream:    stream,
		ready:     ready,
		executors: executors,
	}
	return
}

// Handshake
// resolves with the negotiated PeerInfo once the handshake completes.
func (as *AsyncStream) Handshake() (future async.Future[PeerInfo]) {
	promise, promiseErr := async.Make[PeerInfo](as.ctx, async.WithWait())
	if promiseErr != nil {
		future = async.FailedImmediately[PeerInfo](as.ctx, promiseErr)
		return
	}
	future = promise.Future()
	go func() {
		for {
			hErr := as.stream.Handshake()
			if hErr == nil {
				info, _ := as.stream.PeerInfo()
				promise.Succeed(info)
				return
			}
			if !IsWouldBlock(hErr) {
				promise.Fail(hErr)
				return
			}
			if wErr := as.await(); wErr != nil {
				promise.Fail(wErr)
				return
			}
		}
	}()
	return
}

// Read
// resolves with the count of decrypted bytes copied into p. End of stream
// fails the future with io.EOF, mirroring the synchronous surface.
func (as *AsyncStream) Read(p []byte) (future async.Future[int]) {
	promise, promiseErr := async.Make[int](as.ctx, async.WithWait())
	if promiseErr != nil {
		future = async.FailedImmediately[int](as.ctx, promiseErr)
		return
	}
	future = promise.Future()
	go func() {
		for {
			n, rErr := as.stream.Read(p)
			if rErr == nil {
				promise.Succeed(n)
				return
			}
			if !IsWouldBlock(rErr) {
				promise.Fail(rErr)
				return
			}
			if wErr := as.await(); wErr != nil {
				promise.Fail(wErr)
				return
			}
		}
	}()
	return
}

// Write
// resolves once all of p has been accepted by the engine.
func (as *AsyncStream) Write(p []byte) (future async.Future[int]) {
	promise, promiseErr := async.Make[int](as.ctx, async.WithWait())
	if promiseErr != nil {
		future = async.FailedImmediately[int](as.ctx, promiseErr)
		return
	}
	future = promise.Future()
	go func() {
		wrote := 0
		for wrote < len(p) {
			n, wErr := as.stream.Write(p[wrote:])
			wrote += n
			if wErr == nil {
				continue
			}
			if !IsWouldBlock(wErr) {
				promise.Fail(wErr)
				return
			}
			if aErr := as.await(); aErr != nil {
				promise.Fail(aErr)
				return
			}
		}
		promise.Succeed(wrote)
		return
	}()
	return
}

// Flush
// resolves once the outbound ciphertext queue fully drained.
func (as *AsyncStream) Flush() (future async.Future[async.Void]) {
	promise, promiseErr := async.Make[async.Void](as.ctx, async.WithWait())
	if promiseErr != nil {
		future = async.FailedImmediately[async.Void](as.ctx, promiseErr)
		return
	}
	future = promise.Future()
	go func() {
		for {
			fErr := as.stream.Flush()
			if fErr == nil {
				promise.Succeed(async.Void{})
				return
			}
			if !IsWouldBlock(fErr) {
				promise.Fail(fErr)
				return
			}
			if wErr := as.await(); wErr != nil {
				promise.Fail(wErr)
				return
			}
		}
	}()
	return
}

// Close
// drives the graceful shutdown to completion, releases the stream's
// buffers and tears the facade down.
func (as *AsyncStream) Close() (future async.Future[async.Void]) {
	promise, promiseErr := async.Make[async.Void](as.ctx, async.WithWait())
	if promiseErr != nil {
		future = async.FailedImmediately[async.Void](as.ctx, promiseErr)
		return
	}
	future = promise.Future()
	go func() {
		var outcome error
		for {
			sErr := as.stream.Shutdown()
			if sErr == nil {
				break
			}
			if !IsWouldBlock(sErr) {
				outcome = sErr
				break
			}
			if wErr := as.await(); wErr != nil {
				outcome = wErr
				break
			}
		}
		as.stream.release()
		if outcome != nil {
			promise.Fail(outcome)
		} else {
			promise.Succeed(async.Void{})
		}
		// executors go before the context so the completion handler runs
		_ = as.executors.Close()
		as.cancel()
	}()
	return
}

// await suspends until the stalled direction can progress: a non-empty
// outbound queue means the transport refused a write, anything else means
// a read came up empty.
func (as *AsyncStream) await() (err error) {
	if as.stream.sess.outbound != nil && as.stream.sess.outbound.Len() > 0 {
		err = as.ready.AwaitWritable(as.ctx)
		return
	}
	err = as.ready.AwaitReadable(as.ctx)
	return
}
