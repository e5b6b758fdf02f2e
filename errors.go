package tlsbridge

import (
	"github.com/brickingsoft/errors"
)

var (
	// ErrWouldBlock
	// the operation made no progress because the transport was not ready.
	// It is a suspension signal, not a failure. Retry the same call after
	// the transport's readiness changes.
	ErrWouldBlock = errors.Define("tlsbridge: operation would block")
	// ErrTransport
	// the underlying transport failed fatally. The stream is poisoned.
	ErrTransport = errors.Define("tlsbridge: transport failed")
	// ErrProtocol
	// the engine rejected inbound bytes as malformed or out of order.
	// The stream is poisoned.
	ErrProtocol = errors.Define("tlsbridge: protocol violation")
	// ErrHandshake
	// negotiation or peer verification failed before any application data
	// was exchanged. The stream is poisoned.
	ErrHandshake = errors.Define("tlsbridge: handshake failed")
	// ErrStreamClosed
	// the operation was attempted after local or mutual shutdown.
	ErrStreamClosed = errors.Define("tlsbridge: stream closed")
)

func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}

func IsTransportError(err error) bool {
	return errors.Is(err, ErrTransport)
}

func IsProtocolError(err error) bool {
	return errors.Is(err, ErrProtocol)
}

func IsHandshakeError(err error) bool {
	return errors.Is(err, ErrHandshake)
}

func IsStreamClosed(err error) bool {
	return errors.Is(err, ErrStreamClosed)
}

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "tlsbridge"
)

const (
	errMetaOpKey       = "op"
	errMetaOpHandshake = "handshake"
	errMetaOpRead      = "read"
	errMetaOpWrite     = "write"
	errMetaOpFlush     = "flush"
	errMetaOpShutdown  = "shutdown"
)

func newTransportErr(op string, cause error) error {
	return errors.New(
		"transport failed",
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, op),
		errors.WithWrap(errors.Join(ErrTransport, cause)),
	)
}

func newProtocolErr(op string, cause error) error {
	return errors.New(
		"protocol violation",
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, op),
		errors.WithWrap(errors.Join(ErrProtocol, cause)),
	)
}

func newHandshakeErr(cause error) error {
	return errors.New(
		"handshake failed",
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, errMetaOpHandshake),
		errors.WithWrap(errors.Join(ErrHandshake, cause)),
	)
}
