package tlsbridge

import (
	"github.com/brickingsoft/tlsbridge/pkg/bytebuffers"
)

// session owns one engine instance plus the buffering between the engine
// and the transport. It is exclusively owned by one Stream.
type session struct {
	engine Engine
	role   Role
	// handshakeDone latches once the engine reports completion. No
	// plaintext crosses the stream boundary while it is false.
	handshakeDone bool
	// outbound queues ciphertext the transport has not accepted yet. The
	// bytes are the in-order output of previously accepted plaintext and
	// handshake records; they are never reordered or dropped.
	outbound bytebuffers.Buffer
	// residue holds decrypted plaintext not yet copied to a caller buffer.
	residue bytebuffers.Buffer
	// staging is the scratch area for transport reads.
	staging []byte
	// maxOutbound bounds the outbound queue. Write stops accepting caller
	// bytes once the queue reaches it; the queue may overshoot by at most
	// one sealed record.
	maxOutbound int
	// fatal poisons the session: once set, every operation replays it
	// verbatim without touching the transport.
	fatal error
	// transportEOF latches when TryRead reports io.EOF.
	transportEOF bool
}

func newSession(engine Engine, role Role, opts *Options) *session {
	return &session{
		engine:      engine,
		role:        role,
		outbound:    bytebuffers.Acquire(),
		residue:     bytebuffers.Acquire(),
		staging:     make([]byte, opts.ReadChunkSize),
		maxOutbound: opts.MaxOutboundBuffer,
	}
}

func (sess *session) failed() (err error) {
	err = sess.fatal
	return
}

// poison records the first fatal error and returns the recorded one, so a
// later failure can never mask the original cause.
func (sess *session) poison(err error) error {
	if sess.fatal == nil {
		sess.fatal = err
	}
	return sess.fatal
}

func (sess *session) outboundFull() bool {
	return sess.outbound.Len() >= sess.maxOutbound
}

func (sess *session) release() {
	bytebuffers.Release(sess.outbound)
	bytebuffers.Release(sess.residue)
	sess.outbound = nil
	sess.residue = nil
	sess.staging = nil
}
