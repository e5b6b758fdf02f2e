package tlsbridge

import (
	"io"

	"github.com/brickingsoft/errors"
)

// Handshake
// drives the handshake one non-blocking round further. Returns nil once
// the engine reports completion, ErrWouldBlock when the transport stalled
// and the call must be retried after the next readiness change, and a
// fatal error when negotiation failed. Read and Write call it implicitly;
// callers only need it to learn PeerInfo before exchanging data.
func (stream *Stream) Handshake() (err error) {
	if err = stream.sess.failed(); err != nil {
		return
	}
	if stream.sess.handshakeDone {
		err = stream.retireFinalFlight(errMetaOpHandshake)
		return
	}
	err = stream.driveHandshake()
	return
}

// retireFinalFlight pushes handshake tail bytes still queued after the
// engine reported completion. A peer that only reads after its own
// handshake finished would otherwise never see them. A stalled transport
// is tolerated, a failed one poisons the stream.
func (stream *Stream) retireFinalFlight(op string) (err error) {
	sess := stream.sess
	if sess.outbound.Len() == 0 {
		return
	}
	if dErr := stream.drainOutbound(); dErr != nil && !IsWouldBlock(dErr) {
		err = sess.poison(newTransportErr(op, dErr))
	}
	return
}

func (stream *Stream) driveHandshake() (err error) {
	sess := stream.sess
	for !sess.engine.HandshakeComplete() {
		// Drain engine output before attempting any read. Two peers doing
		// the same can never stall with both waiting for the other to
		// speak first.
		if sess.engine.WantsWrite() {
			if _, hErr := sess.engine.WriteHandshakeTo(sess.outbound); hErr != nil {
				err = sess.poison(newHandshakeErr(hErr))
				return
			}
		}
		if sess.outbound.Len() > 0 {
			if dErr := stream.drainOutbound(); dErr != nil {
				if IsWouldBlock(dErr) {
					err = errors.From(ErrWouldBlock)
					return
				}
				err = sess.poison(newTransportErr(errMetaOpHandshake, dErr))
				return
			}
			continue
		}
		if !sess.engine.WantsRead() {
			err = sess.poison(newHandshakeErr(errors.From(errEngineStalled)))
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
				err = sess.poison(newHandshakeErr(io.ErrUnexpectedEOF))
				return
			}
			err = sess.poison(newTransportErr(errMetaOpHandshake, rErr))
			return
		}
		if rn == 0 {
			err = errors.From(ErrWouldBlock)
			return
		}
		if _, fErr := sess.engine.FeedCiphertext(sess.staging[:rn]); fErr != nil {
			stream.flushAlerts()
			err = sess.poison(newHandshakeErr(fErr))
			return
		}
	}
	// The final flight may still be queued; push it best-effort. A stalled
	// transport is not a reason to hide completion, later calls retire
	// the leftovers.
	if sess.engine.WantsWrite() {
		if _, hErr := sess.engine.WriteHandshakeTo(sess.outbound); hErr != nil {
			err = sess.poison(newHandshakeErr(hErr))
			return
		}
	}
	if dErr := stream.drainOutbound(); dErr != nil && !IsWouldBlock(dErr) {
		err = sess.poison(newTransportErr(errMetaOpHandshake, dErr))
		return
	}
	sess.handshakeDone = true
	stream.log.Trace().
		Str("protocol", sess.engine.PeerInfo().Protocol).
		Msg("handshake complete")
	return
}
