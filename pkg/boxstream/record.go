package boxstream

import (
	"crypto/cipher"
	"encoding/binary"
	"io"

	"github.com/brickingsoft/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	recordClose byte = 0x15
	recordData  byte = 0x17

	recordHeaderLen = 3
	// maxRecordPlain caps plaintext per sealed record, matching the TLS
	// record ceiling so the bridge's per-record overshoot stays small.
	maxRecordPlain = 16 * 1024
)

type recordCipher struct {
	aead cipher.AEAD
	seq  uint64
}

func (rc *recordCipher) init(key []byte) (err error) {
	rc.aead, err = chacha20poly1305.New(key)
	if err != nil {
		err = errors.New("boxstream: cipher init failed", errors.WithWrap(err))
	}
	return
}

// nonce is the record sequence number in the tail of a zero prefix. Each
// direction runs its own counter; a reordered or replayed record fails to
// open.
func (rc *recordCipher) nonce() []byte {
	n := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(n[4:], rc.seq)
	rc.seq++
	return n
}

// Encrypt
// seals at most one record worth of p into dst and reports how much
// plaintext it consumed. Callers re-invoke with the remainder, which lets
// the bridge enforce its outbound bound between records.
func (engine *Engine) Encrypt(dst io.Writer, p []byte) (n int, err error) {
	if !engine.complete {
		err = errors.From(ErrNotComplete)
		return
	}
	if engine.sent {
		err = errors.From(ErrWriteAfterClose)
		return
	}
	if len(p) == 0 {
		return
	}
	chunk := p
	if len(chunk) > maxRecordPlain {
		chunk = chunk[:maxRecordPlain]
	}
	if err = engine.seal(dst, recordData, chunk); err != nil {
		return
	}
	n = len(chunk)
	return
}

// SendCloseNotify
// queues the close alert record once. Before the handshake completes
// there are no record keys yet, so the close stays implicit and the
// transport teardown is what the peer observes.
func (engine *Engine) SendCloseNotify() {
	if engine.sent {
		return
	}
	engine.sent = true
	if !engine.complete {
		return
	}
	_ = engine.seal(engine.out, recordClose, nil)
}

func (engine *Engine) seal(dst io.Writer, typ byte, plaintext []byte) (err error) {
	header := make([]byte, recordHeaderLen)
	header[0] = typ
	binary.BigEndian.PutUint16(header[1:], uint16(len(plaintext)+engine.sealer.aead.Overhead()))
	sealed := engine.sealer.aead.Seal(nil, engine.sealer.nonce(), plaintext, header)
	if _, err = dst.Write(header); err != nil {
		return
	}
	_, err = dst.Write(sealed)
	return
}

// openRecords opens every complete record staged so far. Data lands in the
// plaintext buffer, the close alert latches the peer-end flag.
func (engine *Engine) openRecords() (err error) {
	for {
		header := engine.inRaw.Peek(recordHeaderLen)
		if len(header) < recordHeaderLen {
			return
		}
		typ := header[0]
		if typ != recordData && typ != recordClose {
			err = errors.From(ErrBadRecord)
			return
		}
		sealedLen := int(binary.BigEndian.Uint16(header[1:]))
		overhead := engine.opener.aead.Overhead()
		if sealedLen < overhead || sealedLen > maxRecordPlain+overhead {
			err = errors.From(ErrBadRecord)
			return
		}
		frame := engine.inRaw.Peek(recordHeaderLen + sealedLen)
		if len(frame) < recordHeaderLen+sealedLen {
			return
		}
		if engine.peerEnd {
			err = errors.From(ErrBadRecord)
			return
		}
		plain, openErr := engine.opener.aead.Open(nil, engine.opener.nonce(), frame[recordHeaderLen:], frame[:recordHeaderLen])
		if openErr != nil {
			err = errors.From(ErrAuthFailed)
			return
		}
		engine.inRaw.Discard(recordHeaderLen + sealedLen)
		if typ == recordClose {
			engine.peerEnd = true
			continue
		}
		if len(plain) > 0 {
			_, _ = engine.inPlain.Write(plain)
		}
	}
}
