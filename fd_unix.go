//go:build unix

package tlsbridge

import (
	"io"

	"github.com/brickingsoft/errors"
	"golang.org/x/sys/unix"
)

// FdTransport
// a Transport over a non-blocking file descriptor, typically a connected
// socket already registered with the caller's poller. The transport never
// touches readiness itself: EAGAIN surfaces as ErrWouldBlock and the
// poller decides when to retry.
type FdTransport struct {
	fd int
}

// NewFdTransport
// takes ownership of fd and switches it to non-blocking mode.
func NewFdTransport(fd int) (transport *FdTransport, err error) {
	if fd < 0 {
		err = errors.New("tlsbridge: invalid file descriptor")
		return
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		err = errors.New("tlsbridge: set nonblock failed", errors.WithWrap(err))
		return
	}
	transport = &FdTransport{fd: fd}
	return
}

func (transport *FdTransport) TryRead(p []byte) (n int, err error) {
	for {
		n, err = unix.Read(transport.fd, p)
		if err == nil {
			if n == 0 {
				err = io.EOF
			}
			return
		}
		switch err {
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			n = 0
			err = errors.From(ErrWouldBlock)
			return
		default:
			n = 0
			return
		}
	}
}

func (transport *FdTransport) TryWrite(p []byte) (n int, err error) {
	for {
		n, err = unix.Write(transport.fd, p)
		if err == nil {
			return
		}
		switch err {
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			n = 0
			err = errors.From(ErrWouldBlock)
			return
		default:
			n = 0
			return
		}
	}
}

func (transport *FdTransport) Close() (err error) {
	err = unix.Close(transport.fd)
	return
}

// Fd
// the owned descriptor, for poller registration.
func (transport *FdTransport) Fd() int {
	return transport.fd
}
