package boxstream

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"github.com/brickingsoft/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	helloMagic     = "BXS1"
	helloHeaderLen = 6
	maxHelloBody   = 1024
)

func (engine *Engine) queueClientHello() {
	body := make([]byte, 0, 64)
	body = append(body, engine.publicKey...)
	body = append(body, byte(len(engine.protocols)))
	for _, proto := range engine.protocols {
		body = append(body, byte(len(proto)))
		body = append(body, proto...)
	}
	body = append(body, byte(len(engine.serverName)))
	body = append(body, engine.serverName...)
	engine.queueHello(body)
}

func (engine *Engine) queueServerHello() {
	body := make([]byte, 0, 64)
	body = append(body, engine.publicKey...)
	body = append(body, byte(len(engine.protocol)))
	body = append(body, engine.protocol...)
	engine.queueHello(body)
}

func (engine *Engine) queueHello(body []byte) {
	header := make([]byte, helloHeaderLen)
	copy(header, helloMagic)
	binary.BigEndian.PutUint16(header[4:], uint16(len(body)))
	_, _ = engine.out.Write(header)
	_, _ = engine.out.Write(body)
}

// takeHello parses the peer hello out of the staged ciphertext. Returns
// false when more bytes are needed.
func (engine *Engine) takeHello() (consumed bool, err error) {
	header := engine.inRaw.Peek(helloHeaderLen)
	if len(header) < helloHeaderLen {
		return
	}
	if string(header[:4]) != helloMagic {
		err = errors.From(ErrBadHello)
		return
	}
	bodyLen := int(binary.BigEndian.Uint16(header[4:]))
	if bodyLen < curve25519.PointSize || bodyLen > maxHelloBody {
		err = errors.From(ErrBadHello)
		return
	}
	frame := engine.inRaw.Peek(helloHeaderLen + bodyLen)
	if len(frame) < helloHeaderLen+bodyLen {
		return
	}
	body := frame[helloHeaderLen:]
	peerKey := make([]byte, curve25519.PointSize)
	copy(peerKey, body[:curve25519.PointSize])
	rest := body[curve25519.PointSize:]
	if engine.isClient {
		err = engine.onServerHello(rest)
	} else {
		err = engine.onClientHello(rest)
	}
	if err != nil {
		return
	}
	engine.peerKey = peerKey
	engine.inRaw.Discard(helloHeaderLen + bodyLen)
	if err = engine.deriveKeys(); err != nil {
		return
	}
	engine.gotPeerHello = true
	engine.complete = true
	if !engine.isClient {
		engine.queueServerHello()
	}
	consumed = true
	return
}

func (engine *Engine) onClientHello(rest []byte) (err error) {
	offered, rest, ok := parseProtoList(rest)
	if !ok {
		err = errors.From(ErrBadHello)
		return
	}
	serverName, rest, ok := parseString(rest)
	if !ok || len(rest) != 0 {
		err = errors.From(ErrBadHello)
		return
	}
	engine.serverName = serverName
	engine.protocol, err = negotiate(offered, engine.protocols)
	return
}

func (engine *Engine) onServerHello(rest []byte) (err error) {
	chosen, rest, ok := parseString(rest)
	if !ok || len(rest) != 0 {
		err = errors.From(ErrBadHello)
		return
	}
	if chosen != "" && !contains(engine.protocols, chosen) {
		err = errors.From(ErrNoProtocol)
		return
	}
	engine.protocol = chosen
	return
}

// negotiate picks the first initiator offer the responder supports. A side
// with no configured protocols accepts anything.
func negotiate(offered []string, supported []string) (chosen string, err error) {
	if len(offered) == 0 {
		return
	}
	if len(supported) == 0 {
		chosen = offered[0]
		return
	}
	for _, offer := range offered {
		if contains(supported, offer) {
			chosen = offer
			return
		}
	}
	err = errors.From(ErrNoProtocol)
	return
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func parseProtoList(p []byte) (protos []string, rest []byte, ok bool) {
	if len(p) < 1 {
		return
	}
	count := int(p[0])
	rest = p[1:]
	for i := 0; i < count; i++ {
		var proto string
		proto, rest, ok = parseString(rest)
		if !ok {
			return
		}
		protos = append(protos, proto)
	}
	ok = true
	return
}

func parseString(p []byte) (s string, rest []byte, ok bool) {
	if len(p) < 1 {
		return
	}
	n := int(p[0])
	if len(p) < 1+n {
		return
	}
	s = string(p[1 : 1+n])
	rest = p[1+n:]
	ok = true
	return
}

// deriveKeys runs the HKDF-SHA256 schedule over the X25519 shared secret.
// The salt binds both ephemeral keys in client-then-server order so the
// two sides expand identical material.
func (engine *Engine) deriveKeys() (err error) {
	shared, curveErr := curve25519.X25519(engine.privateKey, engine.peerKey)
	if curveErr != nil {
		err = errors.New("boxstream: key agreement failed", errors.WithWrap(curveErr))
		return
	}
	clientKey, serverKey := engine.publicKey, engine.peerKey
	if !engine.isClient {
		clientKey, serverKey = engine.peerKey, engine.publicKey
	}
	salt := make([]byte, 0, 2*curve25519.PointSize)
	salt = append(salt, clientKey...)
	salt = append(salt, serverKey...)
	c2s, kErr := expandKey(shared, salt, "boxstream v1 c2s")
	if kErr != nil {
		err = kErr
		return
	}
	s2c, kErr := expandKey(shared, salt, "boxstream v1 s2c")
	if kErr != nil {
		err = kErr
		return
	}
	if engine.isClient {
		err = initCiphers(&engine.sealer, c2s, &engine.opener, s2c)
	} else {
		err = initCiphers(&engine.sealer, s2c, &engine.opener, c2s)
	}
	return
}

func expandKey(secret []byte, salt []byte, info string) (key []byte, err error) {
	key = make([]byte, chacha20poly1305.KeySize)
	if _, err = io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), key); err != nil {
		key = nil
		err = errors.New("boxstream: key schedule failed", errors.WithWrap(err))
	}
	return
}

func initCiphers(sealer *recordCipher, sealKey []byte, opener *recordCipher, openKey []byte) (err error) {
	if err = sealer.init(sealKey); err != nil {
		return
	}
	err = opener.init(openKey)
	return
}
