package packrpc

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"time"
)

// Handshake authenticates socket connections with an HMAC-SHA256
// challenge-response exchange, for deployments that need socket auth
// without relying on peer credentials (e.g. containers sharing a
// mount namespace but not a UID).
type Handshake struct {
	secret []byte
}

// NewHandshake creates a Handshake keyed by the given shared secret.
func NewHandshake(secret []byte) *Handshake {
	return &Handshake{secret: secret}
}

// GenerateHandshakeSecret returns a fresh random 32-byte secret suitable
// for keying a Handshake.
func GenerateHandshakeSecret() ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("packrpc: generate handshake secret: %w", err)
	}
	return secret, nil
}

// Respond performs the dialing side of the challenge-response exchange:
// read the server's challenge, sign it, and wait for the verdict.
func (h *Handshake) Respond(conn net.Conn) error {
	if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return fmt.Errorf("packrpc: set handshake deadline: %w", err)
	}
	defer conn.SetDeadline(time.Time{})

	challenge := make([]byte, 32)
	if _, err := io.ReadFull(conn, challenge); err != nil {
		return fmt.Errorf("packrpc: read challenge: %w", err)
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(challenge)
	response := mac.Sum(nil)

	if _, err := conn.Write(response); err != nil {
		return fmt.Errorf("packrpc: send handshake response: %w", err)
	}

	verdict := make([]byte, 1)
	if _, err := io.ReadFull(conn, verdict); err != nil {
		return fmt.Errorf("packrpc: read handshake verdict: %w", err)
	}
	if verdict[0] != 1 {
		return fmt.Errorf("packrpc: handshake rejected")
	}
	return nil
}

// Challenge performs the accepting side of the exchange: issue a random
// challenge, verify the signed response, and report the verdict.
func (h *Handshake) Challenge(conn net.Conn) error {
	if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return fmt.Errorf("packrpc: set handshake deadline: %w", err)
	}
	defer conn.SetDeadline(time.Time{})

	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return fmt.Errorf("packrpc: generate challenge: %w", err)
	}
	if _, err := conn.Write(challenge); err != nil {
		return fmt.Errorf("packrpc: send challenge: %w", err)
	}

	response := make([]byte, 32)
	if _, err := io.ReadFull(conn, response); err != nil {
		return fmt.Errorf("packrpc: read handshake response: %w", err)
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(challenge)
	expected := mac.Sum(nil)

	if !hmac.Equal(response, expected) {
		conn.Write([]byte{0})
		return fmt.Errorf("packrpc: handshake signature mismatch")
	}
	if _, err := conn.Write([]byte{1}); err != nil {
		return fmt.Errorf("packrpc: send handshake verdict: %w", err)
	}
	return nil
}

// HandshakeListener wraps a listener, running the challenge-response
// exchange against every accepted connection before handing it back.
type HandshakeListener struct {
	net.Listener
	handshake *Handshake
}

// NewHandshakeListener wraps listener so every accepted connection must
// complete a Handshake keyed by secret.
func NewHandshakeListener(listener net.Listener, secret []byte) *HandshakeListener {
	return &HandshakeListener{Listener: listener, handshake: NewHandshake(secret)}
}

// Accept accepts a connection and runs the challenge before returning it.
func (l *HandshakeListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if err := l.handshake.Challenge(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("packrpc: %w", err)
	}
	return conn, nil
}

// AuthenticatedConn is a connection that has completed a Handshake.
type AuthenticatedConn struct {
	net.Conn
	authenticated bool
}

// DialAuthenticated dials address and completes the handshake keyed by
// secret before returning the connection.
func DialAuthenticated(network, address string, secret []byte) (*AuthenticatedConn, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, err
	}
	handshake := NewHandshake(secret)
	if err := handshake.Respond(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("packrpc: %w", err)
	}
	return &AuthenticatedConn{Conn: conn, authenticated: true}, nil
}

// IsAuthenticated reports whether the handshake succeeded.
func (c *AuthenticatedConn) IsAuthenticated() bool {
	return c.authenticated
}

// HandshakeSecretFromPassphrase derives a 32-byte secret from a passphrase.
func HandshakeSecretFromPassphrase(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

// HandshakeSecretFromHex decodes a hex-encoded secret.
func HandshakeSecretFromHex(hexStr string) ([]byte, error) {
	return hex.DecodeString(hexStr)
}
