// Package boxstream is a compact record-layer engine for the tlsbridge
// core: X25519 ephemeral key agreement, an HKDF-SHA256 key schedule and
// ChaCha20-Poly1305 sealed records with an in-band close alert. It
// performs no I/O and no certificate authentication: peers are
// identified by their ephemeral public key only, which is what the
// bundled tests and local duplex wiring need.
package boxstream

import (
	"crypto/rand"
	"io"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/tlsbridge"
	"github.com/brickingsoft/tlsbridge/pkg/bytebuffers"
	"golang.org/x/crypto/curve25519"
)

var (
	ErrBadHello        = errors.Define("boxstream: malformed hello")
	ErrBadRecord       = errors.Define("boxstream: malformed record")
	ErrAuthFailed      = errors.Define("boxstream: record authentication failed")
	ErrNoProtocol      = errors.Define("boxstream: no common protocol")
	ErrNotComplete     = errors.Define("boxstream: handshake has not completed")
	ErrWriteAfterClose = errors.Define("boxstream: write after close alert")
)

type Config struct {
	// Protocols the application protocols this side supports, most
	// preferred first. The responder picks the first initiator offer it
	// also supports.
	Protocols []string
	// ServerName the name the initiator announces.
	ServerName string
	// Rand the entropy source for the ephemeral key, crypto/rand when nil.
	Rand io.Reader
}

// Client
// an engine playing the handshake initiator.
func Client(config Config) (engine *Engine, err error) {
	engine, err = newEngine(config, true)
	return
}

// Server
// an engine playing the handshake responder.
func Server(config Config) (engine *Engine, err error) {
	engine, err = newEngine(config, false)
	return
}

type Engine struct {
	isClient   bool
	protocols  []string
	serverName string

	privateKey []byte
	publicKey  []byte
	peerKey    []byte

	out     bytebuffers.Buffer
	inRaw   bytebuffers.Buffer
	inPlain bytebuffers.Buffer

	gotPeerHello bool
	complete     bool
	protocol     string

	sealer  recordCipher
	opener  recordCipher
	sticky  error
	sent    bool
	peerEnd bool
}

func newEngine(config Config, isClient bool) (engine *Engine, err error) {
	entropy := config.Rand
	if entropy == nil {
		entropy = rand.Reader
	}
	privateKey := make([]byte, curve25519.ScalarSize)
	if _, err = io.ReadFull(entropy, privateKey); err != nil {
		err = errors.New("boxstream: generate ephemeral key failed", errors.WithWrap(err))
		return
	}
	publicKey, curveErr := curve25519.X25519(privateKey, curve25519.Basepoint)
	if curveErr != nil {
		err = errors.New("boxstream: generate ephemeral key failed", errors.WithWrap(curveErr))
		return
	}
	engine = &Engine{
		isClient:   isClient,
		protocols:  config.Protocols,
		serverName: config.ServerName,
		privateKey: privateKey,
		publicKey:  publicKey,
		out:        bytebuffers.NewBuffer(),
		inRaw:      bytebuffers.NewBuffer(),
		inPlain:    bytebuffers.NewBuffer(),
	}
	if isClient {
		engine.queueClientHello()
	}
	return
}

func (engine *Engine) WantsWrite() bool {
	return engine.out.Len() > 0
}

func (engine *Engine) WriteHandshakeTo(w io.Writer) (n int, err error) {
	for engine.out.Len() > 0 {
		p := engine.out.Peek(engine.out.Len())
		wn, wErr := w.Write(p)
		if wn > 0 {
			engine.out.Discard(wn)
			n += wn
		}
		if wErr != nil {
			err = wErr
			return
		}
		if wn == 0 {
			return
		}
	}
	return
}

func (engine *Engine) WantsRead() bool {
	return !engine.gotPeerHello
}

func (engine *Engine) FeedCiphertext(p []byte) (n int, err error) {
	if engine.sticky != nil {
		err = engine.sticky
		return
	}
	n, _ = engine.inRaw.Write(p)
	if err = engine.process(); err != nil {
		engine.sticky = err
	}
	return
}

func (engine *Engine) WritePlaintextTo(w io.Writer) (n int, err error) {
	for engine.inPlain.Len() > 0 {
		p := engine.inPlain.Peek(engine.inPlain.Len())
		wn, wErr := w.Write(p)
		if wn > 0 {
			engine.inPlain.Discard(wn)
			n += wn
		}
		if wErr != nil {
			err = wErr
			return
		}
		if wn == 0 {
			return
		}
	}
	return
}

func (engine *Engine) HandshakeComplete() bool {
	return engine.complete
}

func (engine *Engine) PeerInfo() (info tlsbridge.PeerInfo) {
	info = tlsbridge.PeerInfo{
		Protocol:   engine.protocol,
		PeerID:     engine.peerKey,
		ServerName: engine.serverName,
	}
	return
}

func (engine *Engine) PeerCloseNotifyReceived() bool {
	return engine.peerEnd
}

// process consumes staged ciphertext: the peer hello first, sealed records
// from then on.
func (engine *Engine) process() (err error) {
	if !engine.gotPeerHello {
		var consumed bool
		if consumed, err = engine.takeHello(); err != nil || !consumed {
			return
		}
	}
	err = engine.openRecords()
	return
}
