package tlsbridge_test

import (
	"testing"

	"github.com/brickingsoft/tlsbridge"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Messages must reconstruct identically however the transport fragments
// them, down to one byte per transfer.
func TestFragmentationInvariance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 64).Draw(t, "capacity")
		message := rapid.SliceOfN(rapid.Byte(), 1, 2048).Draw(t, "message")

		client, server := newPair(
			t,
			[]tlsbridge.PipeOption{tlsbridge.WithPipeCapacity(capacity)},
			nil,
		)
		completeHandshake(t, client, server)

		wrote := 0
		var got []byte
		buf := make([]byte, 512)
		for i := 0; i < 1000000 && len(got) < len(message); i++ {
			if wrote < len(message) {
				n, wErr := client.Write(message[wrote:])
				wrote += n
				if wErr != nil {
					require.True(t, tlsbridge.IsWouldBlock(wErr))
				}
			} else if fErr := client.Flush(); fErr != nil {
				require.True(t, tlsbridge.IsWouldBlock(fErr))
			}
			n, rErr := server.Read(buf)
			if rErr != nil {
				require.True(t, tlsbridge.IsWouldBlock(rErr))
				continue
			}
			got = append(got, buf[:n]...)
		}
		require.Equal(t, message, got)
	})
}
