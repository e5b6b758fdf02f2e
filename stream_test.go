package tlsbridge_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/brickingsoft/tlsbridge"
	"github.com/brickingsoft/tlsbridge/pkg/boxstream"
	"github.com/stretchr/testify/require"
)

func newEngines(t require.TestingT) (client *boxstream.Engine, server *boxstream.Engine) {
	var err error
	client, err = boxstream.Client(boxstream.Config{
		Protocols:  []string{"echo/1"},
		ServerName: "local",
	})
	require.NoError(t, err)
	server, err = boxstream.Server(boxstream.Config{
		Protocols: []string{"echo/1"},
	})
	require.NoError(t, err)
	return
}

func newPair(t require.TestingT, pipeOptions []tlsbridge.PipeOption, streamOptions []tlsbridge.Option) (client *tlsbridge.Stream, server *tlsbridge.Stream) {
	ct, st := tlsbridge.Pipe(pipeOptions...)
	ce, se := newEngines(t)
	var err error
	client, err = tlsbridge.Client(ct, ce, streamOptions...)
	require.NoError(t, err)
	server, err = tlsbridge.Server(st, se, streamOptions...)
	require.NoError(t, err)
	return
}

func completeHandshake(t require.TestingT, a *tlsbridge.Stream, b *tlsbridge.Stream) {
	for i := 0; i < 10000; i++ {
		aErr := a.Handshake()
		bErr := b.Handshake()
		if aErr == nil && bErr == nil {
			return
		}
		if aErr != nil && !tlsbridge.IsWouldBlock(aErr) {
			require.NoError(t, aErr)
		}
		if bErr != nil && !tlsbridge.IsWouldBlock(bErr) {
			require.NoError(t, bErr)
		}
	}
	require.Fail(t, "handshake did not converge")
}

func TestHandshakeGating(t *testing.T) {
	client, server := newPair(t, nil, nil)

	// nothing on the wire yet, the server cannot see plaintext or progress
	buf := make([]byte, 16)
	n, err := server.Read(buf)
	require.Equal(t, 0, n)
	require.True(t, tlsbridge.IsWouldBlock(err))
	require.False(t, server.HandshakeComplete())

	// a write before the handshake finished accepts nothing
	n, err = server.Write([]byte("too early"))
	require.Equal(t, 0, n)
	require.True(t, tlsbridge.IsWouldBlock(err))

	_, err = server.PeerInfo()
	require.Error(t, err)

	completeHandshake(t, client, server)
	require.True(t, client.HandshakeComplete())
	require.True(t, server.HandshakeComplete())

	clientInfo, err := client.PeerInfo()
	require.NoError(t, err)
	require.Equal(t, "echo/1", clientInfo.Protocol)
	serverInfo, err := server.PeerInfo()
	require.NoError(t, err)
	require.Equal(t, "echo/1", serverInfo.Protocol)
	require.Equal(t, "local", serverInfo.ServerName)
	require.NotEmpty(t, clientInfo.PeerID)
}

func TestHandshakeFinalFlightDrains(t *testing.T) {
	// a transport smaller than the responder's final flight leaves tail
	// bytes queued after the engine reports completion; retried Handshake
	// and Read calls must keep pushing them or the initiator starves
	client, server := newPair(t, []tlsbridge.PipeOption{tlsbridge.WithPipeCapacity(8)}, nil)
	completeHandshake(t, client, server)
	require.True(t, client.HandshakeComplete())
	require.True(t, server.HandshakeComplete())

	message := []byte("trickle")
	n, err := client.Write(message)
	require.NoError(t, err)
	require.Equal(t, len(message), n)

	var got []byte
	buf := make([]byte, 16)
	for i := 0; i < 10000 && len(got) < len(message); i++ {
		if fErr := client.Flush(); fErr != nil {
			require.True(t, tlsbridge.IsWouldBlock(fErr))
		}
		rn, rErr := server.Read(buf)
		if rErr != nil {
			require.True(t, tlsbridge.IsWouldBlock(rErr))
			continue
		}
		got = append(got, buf[:rn]...)
	}
	require.Equal(t, message, got)
}

func TestByteFidelity(t *testing.T) {
	client, server := newPair(t, nil, nil)
	completeHandshake(t, client, server)

	message := []byte("HELLO WORLD")
	n, err := client.Write(message)
	require.NoError(t, err)
	require.Equal(t, len(message), n)
	require.NoError(t, client.Flush())

	got := readAtLeast(t, server, len(message))
	require.Equal(t, message, got)
}

func TestLazyHandshakeViaWrite(t *testing.T) {
	client, server := newPair(t, nil, nil)

	message := []byte("lazy")
	var accepted int
	for i := 0; i < 10000 && accepted < len(message); i++ {
		n, wErr := client.Write(message[accepted:])
		accepted += n
		if wErr != nil {
			require.True(t, tlsbridge.IsWouldBlock(wErr))
		}
		if _, rErr := server.Read(make([]byte, 1)); rErr != nil {
			require.True(t, tlsbridge.IsWouldBlock(rErr))
		}
	}
	require.Equal(t, len(message), accepted)
	require.True(t, client.HandshakeComplete())
	require.True(t, server.HandshakeComplete())
}

func TestPendingVsEOF(t *testing.T) {
	client, server := newPair(t, nil, nil)
	completeHandshake(t, client, server)

	// empty but open: pending, never a zero-byte success
	buf := make([]byte, 8)
	n, err := server.Read(buf)
	require.Equal(t, 0, n)
	require.True(t, tlsbridge.IsWouldBlock(err))

	// residue drains first, then the close-notify turns into a clean EOF
	_, err = client.Write([]byte("tail"))
	require.NoError(t, err)
	require.NoError(t, client.Shutdown())

	got := readAtLeast(t, server, 4)
	require.Equal(t, []byte("tail"), got)

	n, err = server.Read(buf)
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, tlsbridge.ShutdownPeerClosed, server.ShutdownState())
}

func TestShutdownIdempotent(t *testing.T) {
	client, server := newPair(t, nil, nil)
	completeHandshake(t, client, server)

	require.NoError(t, client.Shutdown())
	require.Equal(t, tlsbridge.ShutdownCloseNotifySent, client.ShutdownState())
	require.NoError(t, client.Shutdown())

	// writes are refused after the close-notify went out
	_, err := client.Write([]byte("late"))
	require.True(t, tlsbridge.IsStreamClosed(err))

	// the peer sees exactly one clean EOF
	n, err := server.Read(make([]byte, 8))
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)

	// answering the close completes the exchange on both sides
	require.NoError(t, server.Shutdown())
	require.Equal(t, tlsbridge.ShutdownClosed, server.ShutdownState())
	require.NoError(t, server.Shutdown())

	n, err = client.Read(make([]byte, 8))
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, tlsbridge.ShutdownClosed, client.ShutdownState())
	require.NoError(t, client.Shutdown())
}

type countingTransport struct {
	inner  *tlsbridge.PipeTransport
	reads  int
	writes int
}

func (ct *countingTransport) TryRead(p []byte) (n int, err error) {
	ct.reads++
	n, err = ct.inner.TryRead(p)
	return
}

func (ct *countingTransport) TryWrite(p []byte) (n int, err error) {
	ct.writes++
	n, err = ct.inner.TryWrite(p)
	return
}

func (ct *countingTransport) Close() (err error) {
	err = ct.inner.Close()
	return
}

func TestPoisoning(t *testing.T) {
	ct, st := tlsbridge.Pipe()
	ce, se := newEngines(t)
	client, err := tlsbridge.Client(ct, ce)
	require.NoError(t, err)
	counting := &countingTransport{inner: st}
	server, err := tlsbridge.Server(counting, se)
	require.NoError(t, err)
	completeHandshake(t, client, server)

	// corrupt bytes straight onto the wire, bypassing the client engine
	_, err = ct.TryWrite([]byte("this is not a sealed record"))
	require.NoError(t, err)

	_, err = server.Read(make([]byte, 16))
	require.True(t, tlsbridge.IsProtocolError(err))
	first := err

	reads, writes := counting.reads, counting.writes
	_, err = server.Read(make([]byte, 16))
	require.Equal(t, first, err)
	_, err = server.Write([]byte("x"))
	require.Equal(t, first, err)
	err = server.Flush()
	require.Equal(t, first, err)
	err = server.Handshake()
	require.Equal(t, first, err)
	require.Equal(t, reads, counting.reads)
	require.Equal(t, writes, counting.writes)
}

func TestBackpressureBound(t *testing.T) {
	client, server := newPair(
		t,
		[]tlsbridge.PipeOption{tlsbridge.WithPipeCapacity(64)},
		[]tlsbridge.Option{tlsbridge.WithMaxOutboundBuffer(4 * 1024)},
	)
	completeHandshake(t, client, server)

	payload := bytes.Repeat([]byte("z"), 1024)
	accepted := 0
	blocked := false
	for i := 0; i < 1000; i++ {
		n, wErr := client.Write(payload)
		accepted += n
		if wErr != nil {
			require.True(t, tlsbridge.IsWouldBlock(wErr))
			require.Equal(t, 0, n)
			blocked = true
			break
		}
	}
	require.True(t, blocked, "write never reported backpressure")
	// bound + at most one sealed record of overshoot, plus the transport's
	// own capacity
	require.LessOrEqual(t, accepted, 4*1024+16*1024+64+64)

	// draining the peer releases the pressure
	drained := 0
	for i := 0; i < 100000 && drained < accepted; i++ {
		n, rErr := server.Read(make([]byte, 4096))
		drained += n
		if rErr != nil {
			require.True(t, tlsbridge.IsWouldBlock(rErr))
			if fErr := client.Flush(); fErr != nil {
				require.True(t, tlsbridge.IsWouldBlock(fErr))
			}
		}
	}
	require.Equal(t, accepted, drained)

	n, err := client.Write([]byte("more"))
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

// readAtLeast retries pending reads until want bytes arrived.
func readAtLeast(t require.TestingT, stream *tlsbridge.Stream, want int) (got []byte) {
	buf := make([]byte, 4096)
	for i := 0; i < 100000 && len(got) < want; i++ {
		n, err := stream.Read(buf)
		if err != nil {
			require.True(t, tlsbridge.IsWouldBlock(err))
			continue
		}
		got = append(got, buf[:n]...)
	}
	require.GreaterOrEqual(t, len(got), want)
	return
}
