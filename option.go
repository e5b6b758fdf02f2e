package tlsbridge

import (
	"github.com/brickingsoft/errors"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxOutboundBuffer = 64 * 1024
	DefaultReadChunkSize     = 16*1024 + 512
)

type Options struct {
	// MaxOutboundBuffer bounds the outbound ciphertext queue. When the
	// queue reaches the bound, Write reports ErrWouldBlock instead of
	// accepting more caller bytes.
	MaxOutboundBuffer int
	// ReadChunkSize is how much ciphertext one transport read may stage.
	// The default fits a full TLS record plus framing.
	ReadChunkSize int
	// Logger receives trace-level state transition events. Disabled by
	// default.
	Logger zerolog.Logger
}

type Option func(options *Options) (err error)

// WithMaxOutboundBuffer
// sets the outbound ciphertext queue bound. Values below one record size
// still work but force record-at-a-time writes.
func WithMaxOutboundBuffer(n int) Option {
	return func(options *Options) (err error) {
		if n < 1 {
			err = errors.New("tlsbridge: max outbound buffer must be positive")
			return
		}
		options.MaxOutboundBuffer = n
		return
	}
}

// WithReadChunkSize
// sets the transport read staging size.
func WithReadChunkSize(n int) Option {
	return func(options *Options) (err error) {
		if n < 1 {
			err = errors.New("tlsbridge: read chunk size must be positive")
			return
		}
		options.ReadChunkSize = n
		return
	}
}

// WithLogger
// attaches a logger for trace events.
func WithLogger(logger zerolog.Logger) Option {
	return func(options *Options) (err error) {
		options.Logger = logger
		return
	}
}

func defaultOptions() Options {
	return Options{
		MaxOutboundBuffer: DefaultMaxOutboundBuffer,
		ReadChunkSize:     DefaultReadChunkSize,
		Logger:            zerolog.Nop(),
	}
}
