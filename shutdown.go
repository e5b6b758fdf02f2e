package tlsbridge

// ShutdownState
// where the close-notify exchange stands.
type ShutdownState uint8

const (
	// ShutdownOpen both directions are open.
	ShutdownOpen ShutdownState = iota
	// ShutdownCloseNotifySent the local close-notify was flushed, the peer
	// has not answered yet.
	ShutdownCloseNotifySent
	// ShutdownPeerClosed the peer's close-notify arrived first, the local
	// side may still write.
	ShutdownPeerClosed
	// ShutdownClosed both directions are closed or the transport was torn
	// down; terminal.
	ShutdownClosed
)

func (state ShutdownState) String() string {
	switch state {
	case ShutdownOpen:
		return "open"
	case ShutdownCloseNotifySent:
		return "close-notify-sent"
	case ShutdownPeerClosed:
		return "peer-closed"
	default:
		return "closed"
	}
}

// ShutdownState
// the current close sequencing state.
func (stream *Stream) ShutdownState() ShutdownState {
	return stream.shutdown
}

// Shutdown
// sequences the graceful close: queue the close-notify alert once, flush
// it, then tear the transport down when the peer already closed its side.
// Returns ErrWouldBlock while the flush cannot complete; retrying resumes
// the flush, it never queues a second alert. Once the terminal state is
// reached, every further call replays the recorded outcome. After the
// close-notify is queued, Write fails with ErrStreamClosed while Read may
// still drain already-decrypted residue.
func (stream *Stream) Shutdown() (err error) {
	sess := stream.sess
	if stream.shutdown == ShutdownClosed {
		err = stream.shutdownOutcome
		return
	}
	if err = sess.failed(); err != nil {
		return
	}
	if !stream.closeNotifyQueued {
		sess.engine.SendCloseNotify()
		if sess.engine.WantsWrite() {
			if _, hErr := sess.engine.WriteHandshakeTo(sess.outbound); hErr != nil {
				err = sess.poison(newProtocolErr(errMetaOpShutdown, hErr))
				stream.terminate(err)
				return
			}
		}
		stream.closeNotifyQueued = true
		stream.log.Trace().Msg("close-notify queued")
	}
	if dErr := stream.drainOutbound(); dErr != nil {
		if IsWouldBlock(dErr) {
			// state stays pending-flush, the retried call resumes here
			err = dErr
			return
		}
		err = sess.poison(newTransportErr(errMetaOpShutdown, dErr))
		stream.terminate(err)
		return
	}
	if stream.shutdown == ShutdownPeerClosed || sess.engine.PeerCloseNotifyReceived() {
		stream.terminate(stream.transport.Close())
		err = stream.shutdownOutcome
		return
	}
	stream.shutdown = ShutdownCloseNotifySent
	return
}

// observePeerClose records that the peer's close-notify was seen by a
// read. When the local close-notify is already on the wire the exchange is
// complete and the transport can go.
func (stream *Stream) observePeerClose() {
	switch stream.shutdown {
	case ShutdownOpen:
		stream.shutdown = ShutdownPeerClosed
		stream.log.Trace().Msg("peer close-notify received")
	case ShutdownCloseNotifySent:
		stream.log.Trace().Msg("peer close-notify received")
		stream.terminate(stream.transport.Close())
	default:
	}
}

func (stream *Stream) terminate(outcome error) {
	stream.shutdown = ShutdownClosed
	stream.shutdownOutcome = outcome
	stream.log.Trace().Str("state", stream.shutdown.String()).Msg("stream terminated")
}
