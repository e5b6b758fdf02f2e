package tlsbridge

import (
	"io"
)

// Role
// which side of the handshake this session plays.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

func (role Role) String() string {
	if role == RoleClient {
		return "client"
	}
	return "server"
}

// PeerInfo
// session metadata available once the handshake has completed.
type PeerInfo struct {
	// Protocol is the negotiated application protocol, empty when the
	// engine performed no negotiation.
	Protocol string
	// PeerID is the engine's opaque identity of the remote peer, e.g. a
	// public key or a certificate fingerprint.
	PeerID []byte
	// ServerName is the name the client requested, when the engine
	// carries one.
	ServerName string
}

// Engine
// a synchronous record-layer engine. It transforms byte buffers only and
// performs no I/O: ciphertext is fed in and taken out by the Stream, which
// owns the transport. All methods are invoked by a single goroutine.
//
// An engine reports malformed or out-of-order inbound bytes with an error
// from FeedCiphertext; such errors are terminal for the session.
type Engine interface {
	// WantsWrite
	// reports whether the engine has handshake or alert records queued
	// that must reach the peer before it can make further progress.
	WantsWrite() bool
	// WriteHandshakeTo
	// drains queued handshake and alert records into w.
	WriteHandshakeTo(w io.Writer) (n int, err error)
	// WantsRead
	// reports whether the engine needs more ciphertext from the peer.
	WantsRead() bool
	// FeedCiphertext
	// ingests ciphertext received from the transport. The engine buffers
	// partial records internally, so all of p is always consumed unless an
	// error is returned.
	FeedCiphertext(p []byte) (n int, err error)
	// WritePlaintextTo
	// drains decrypted application data into w. Returns 0 when none is
	// buffered.
	WritePlaintextTo(w io.Writer) (n int, err error)
	// Encrypt
	// seals application data into records written to dst. Returns the
	// count of plaintext bytes consumed, which may be less than len(p).
	// Must not be called before the handshake has completed.
	Encrypt(dst io.Writer, p []byte) (n int, err error)
	// HandshakeComplete
	// reports whether the handshake has finished.
	HandshakeComplete() bool
	// PeerInfo
	// negotiated session metadata. Valid once HandshakeComplete is true.
	PeerInfo() (info PeerInfo)
	// SendCloseNotify
	// queues the close-notify alert. The record is drained through
	// WriteHandshakeTo.
	SendCloseNotify()
	// PeerCloseNotifyReceived
	// reports whether the peer announced a graceful end of stream.
	PeerCloseNotifyReceived() bool
}
