package tlsbridge

import (
	"io"

	"github.com/brickingsoft/errors"
	"github.com/rs/zerolog"
)

var (
	errNilTransport         = errors.Define("tlsbridge: transport is nil")
	errNilEngine            = errors.Define("tlsbridge: engine is nil")
	errHandshakeNotComplete = errors.Define("tlsbridge: handshake has not completed")
	errEngineStalled        = errors.Define("tlsbridge: engine made no progress")
)

// Stream
// the read/write/flush surface over one engine and one non-blocking
// transport. A Stream is owned by a single goroutine: operations are
// strictly sequential, no internal goroutines are spawned and no call
// blocks. Operations report ErrWouldBlock when the transport cannot make
// progress; the caller retries after the transport's next readiness
// change.
//
// Read and Write complete the handshake lazily, so callers that do not
// care about session metadata never need to call Handshake themselves.
type Stream struct {
	transport Transport
	sess      *session
	shutdown  ShutdownState
	// closeNotifyQueued latches when the close-notify alert has been
	// handed to the engine, so a retried Shutdown never queues a second
	// one.
	closeNotifyQueued bool
	shutdownOutcome   error
	log               zerolog.Logger
}

// Client
// wraps transport with engine acting as the handshake initiator.
func Client(transport Transport, engine Engine, options ...Option) (stream *Stream, err error) {
	stream, err = newStream(transport, engine, RoleClient, options)
	return
}

// Server
// wraps transport with engine acting as the handshake responder.
func Server(transport Transport, engine Engine, options ...Option) (stream *Stream, err error) {
	stream, err = newStream(transport, engine, RoleServer, options)
	return
}

func newStream(transport Transport, engine Engine, role Role, options []Option) (stream *Stream, err error) {
	if transport == nil {
		err = errors.From(errNilTransport)
		return
	}
	if engine == nil {
		err = errors.From(errNilEngine)
		return
	}
	opts := defaultOptions()
	for _, option := range options {
		if err = option(&opts); err != nil {
			return
		}
	}
	stream = &Stream{
		transport: transport,
		sess:      newSession(engine, role, &opts),
		shutdown:  ShutdownOpen,
		log:       opts.Logger.With().Str("pkg", "tlsbridge").Str("role", role.String()).Logger(),
	}
	return
}

// Read
// copies decrypted application data into p. It completes the handshake
// first when needed. Returns ErrWouldBlock when the transport has nothing
// to read yet; returns (0, io.EOF) only once the peer's close-notify was
// received and all buffered plaintext has been drained. A zero count never
// means "no data yet".
func (stream *Stream) Read(p []byte) (n int, err error) {
	sess := stream.sess
	if err = sess.failed(); err != nil {
		return
	}
	if !sess.handshakeDone {
		if err = stream.driveHandshake(); err != nil {
			return
		}
	}
	if err = stream.retireFinalFlight(errMetaOpRead); err != nil {
		return
	}
	if len(p) == 0 {
		return
	}
	if sess.residue.Len() == 0 {
		// records fed during the handshake's final flight may already have
		// produced plaintext
		if _, dErr := sess.engine.WritePlaintextTo(sess.residue); dErr != nil {
			err = sess.poison(newProtocolErr(errMetaOpRead, dErr))
			return
		}
	}
	if sess.residue.Len() > 0 {
		n, _ = sess.residue.Read(p)
		return
	}
	for {
		if sess.engine.PeerCloseNotifyReceived() {
			stream.observePeerClose()
			err = io.EOF
			return
		}
		if sess.transportEOF {
			// The peer vanished without a close-notify: truncation, not a
			// clean end of stream.
			err = sess.poison(newProtocolErr(errMetaOpRead, io.ErrUnexpectedEOF))
			return
		}
		rn, rErr := stream.transport.TryRead(sess.staging)
		if rErr != nil {
			if IsWouldBlock(rErr) {
				err = errors.From(ErrWouldBlock)
				return
			}
			if errors.Is(rErr, io.EOF) {
				sess.transportEOF = true
				continue
			}
			err = sess.poison(newTransportErr(errMetaOpRead, rErr))
			return
		}
		if rn == 0 {
			err = errors.From(ErrWouldBlock)
			return
		}
		if _, fErr := sess.engine.FeedCiphertext(sess.staging[:rn]); fErr != nil {
			stream.flushAlerts()
			err = sess.poison(newProtocolErr(errMetaOpRead, fErr))
			return
		}
		if _, dErr := sess.engine.WritePlaintextTo(sess.residue); dErr != nil {
			err = sess.poison(newProtocolErr(errMetaOpRead, dErr))
			return
		}
		if sess.residue.Len() > 0 {
			n, _ = sess.residue.Read(p)
			return
		}
		// partial record, try to stage more ciphertext
	}
}

// Write
// feeds as much of p as the engine and the outbound queue bound allow,
// then drains the sealed records towards the transport. The returned count
// is of caller bytes accepted by the engine; acceptance does not imply the
// ciphertext reached the transport yet, leftovers stay queued for the
// next Write or an explicit Flush. Returns (0, ErrWouldBlock) when the
// queue is at its bound and the transport will not drain it.
func (stream *Stream) Write(p []byte) (n int, err error) {
	sess := stream.sess
	if err = sess.failed(); err != nil {
		return
	}
	if stream.closeNotifyQueued {
		err = errors.From(ErrStreamClosed)
		return
	}
	if !sess.handshakeDone {
		if err = stream.driveHandshake(); err != nil {
			return
		}
	}
	if len(p) == 0 {
		return
	}
	// retire previously queued ciphertext before taking on more
	if dErr := stream.drainOutbound(); dErr != nil && !IsWouldBlock(dErr) {
		err = sess.poison(newTransportErr(errMetaOpWrite, dErr))
		return
	}
	for n < len(p) {
		if sess.outboundFull() {
			break
		}
		accepted, eErr := sess.engine.Encrypt(sess.outbound, p[n:])
		if eErr != nil {
			err = sess.poison(newProtocolErr(errMetaOpWrite, eErr))
			return
		}
		if accepted == 0 {
			break
		}
		n += accepted
		if dErr := stream.drainOutbound(); dErr != nil {
			if IsWouldBlock(dErr) {
				continue
			}
			err = sess.poison(newTransportErr(errMetaOpWrite, dErr))
			return
		}
	}
	if n == 0 {
		err = errors.From(ErrWouldBlock)
	}
	return
}

// Flush
// drains the whole outbound ciphertext queue to the transport. Returns
// ErrWouldBlock when the transport refuses progress before the queue is
// empty; nil once it fully drained.
func (stream *Stream) Flush() (err error) {
	sess := stream.sess
	if err = sess.failed(); err != nil {
		return
	}
	if dErr := stream.drainOutbound(); dErr != nil {
		if IsWouldBlock(dErr) {
			err = errors.From(ErrWouldBlock)
			return
		}
		err = sess.poison(newTransportErr(errMetaOpFlush, dErr))
	}
	return
}

// HandshakeComplete
// reports whether the handshake has finished.
func (stream *Stream) HandshakeComplete() bool {
	return stream.sess.handshakeDone
}

// PeerInfo
// negotiated session metadata. Fails until the handshake has completed.
func (stream *Stream) PeerInfo() (info PeerInfo, err error) {
	if !stream.sess.handshakeDone {
		err = errors.From(errHandshakeNotComplete)
		return
	}
	info = stream.sess.engine.PeerInfo()
	return
}

// Role
// which side of the handshake this stream plays.
func (stream *Stream) Role() Role {
	return stream.sess.role
}

// drainOutbound pushes queued ciphertext into the transport until the
// queue is empty or the transport refuses progress. Partially accepted
// chunks are retired in place, never re-queued, so bytes keep their order.
func (stream *Stream) drainOutbound() (err error) {
	sess := stream.sess
	for sess.outbound.Len() > 0 {
		chunk := sess.outbound.Peek(sess.outbound.Len())
		wn, wErr := stream.transport.TryWrite(chunk)
		if wn > 0 {
			sess.outbound.Discard(wn)
		}
		if wErr != nil {
			err = wErr
			return
		}
		if wn == 0 {
			err = errors.From(ErrWouldBlock)
			return
		}
	}
	return
}

// flushAlerts best-effort drains engine output so the peer receives an
// alert record instead of a silently dead connection. Errors are dropped
// to avoid masking the original failure.
func (stream *Stream) flushAlerts() {
	sess := stream.sess
	if sess.engine.WantsWrite() {
		_, _ = sess.engine.WriteHandshakeTo(sess.outbound)
	}
	_ = stream.drainOutbound()
}

// release returns pooled buffers. Any later operation short-circuits with
// ErrStreamClosed before touching them.
func (stream *Stream) release() {
	sess := stream.sess
	if sess.fatal == nil {
		sess.fatal = errors.From(ErrStreamClosed)
	}
	sess.release()
}
