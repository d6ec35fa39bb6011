package packrpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hexwire/packrpc/internal/framing"
	"github.com/hexwire/packrpc/internal/protocol"
)

// UDSTransport implements Transport over a single Unix domain socket
// connection, handling one request at a time.
type UDSTransport struct {
	config   TransportConfig
	logger   *Logger
	conn     net.Conn
	framer   *framing.Framer
	mu       sync.Mutex
	closed   bool
	healthy  bool
	lastUsed time.Time
}

// NewUDSTransport creates a new UDS transport and dials immediately.
func NewUDSTransport(config TransportConfig, logger *Logger) (*UDSTransport, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("packrpc: address is required for UDS transport")
	}
	t := &UDSTransport{config: config, logger: logger}
	if err := t.connect(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *UDSTransport) connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		_ = t.conn.Close()
	}

	timeout := 5 * time.Second
	if v, ok := t.config.Options["timeout"].(time.Duration); ok {
		timeout = v
	}

	conn, err := net.DialTimeout("unix", t.config.Address, timeout)
	if err != nil {
		return fmt.Errorf("packrpc: connect to %s: %w", t.config.Address, err)
	}

	t.conn = conn
	t.framer = framing.NewFramer(conn)
	t.healthy = true
	t.lastUsed = time.Now()
	t.logger.Debug("uds transport connected", "address", t.config.Address)
	return nil
}

// Call sends req and blocks for the matching response.
func (t *UDSTransport) Call(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, fmt.Errorf("packrpc: transport is closed")
	}
	if !t.healthy || t.conn == nil {
		if err := t.reconnectLocked(); err != nil {
			return nil, fmt.Errorf("packrpc: reconnect: %w", err)
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("packrpc: set deadline: %w", err)
		}
		defer func() { _ = t.conn.SetDeadline(time.Time{}) }()
	}

	reqData, err := req.Marshal()
	if err != nil {
		return nil, fmt.Errorf("packrpc: marshal request: %w", err)
	}
	if err := t.framer.WriteMessage(reqData); err != nil {
		t.healthy = false
		return nil, fmt.Errorf("packrpc: write request: %w", err)
	}

	respData, err := t.framer.ReadMessage()
	if err != nil {
		t.healthy = false
		return nil, fmt.Errorf("packrpc: read response: %w", err)
	}

	resp, err := protocol.UnmarshalResponse(respData)
	if err != nil {
		return nil, fmt.Errorf("packrpc: unmarshal response: %w", err)
	}

	t.lastUsed = time.Now()
	return resp, nil
}

func (t *UDSTransport) reconnectLocked() error {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	timeout := 5 * time.Second
	if v, ok := t.config.Options["timeout"].(time.Duration); ok {
		timeout = v
	}
	conn, err := net.DialTimeout("unix", t.config.Address, timeout)
	if err != nil {
		return fmt.Errorf("packrpc: reconnect to %s: %w", t.config.Address, err)
	}
	t.conn = conn
	t.framer = framing.NewFramer(conn)
	t.healthy = true
	t.lastUsed = time.Now()
	return nil
}

// Close closes the underlying connection.
func (t *UDSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.healthy = false
	if t.conn != nil {
		err := t.conn.Close()
		t.conn = nil
		return err
	}
	return nil
}

// IsHealthy reports the transport's last known connection state, probing
// with a ping if the connection has been idle past the configured timeout.
func (t *UDSTransport) IsHealthy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.conn == nil {
		return false
	}

	idleTimeout := 30 * time.Second
	if v, ok := t.config.Options["idle_timeout"].(time.Duration); ok {
		idleTimeout = v
	}
	if time.Since(t.lastUsed) > idleTimeout {
		if err := t.pingLocked(); err != nil {
			t.healthy = false
			return false
		}
	}
	return t.healthy
}

func (t *UDSTransport) pingLocked() error {
	req := &protocol.Request{Method: healthCheckMethod}
	reqData, err := req.Marshal()
	if err != nil {
		return err
	}
	_ = t.conn.SetDeadline(time.Now().Add(1 * time.Second))
	defer func() { _ = t.conn.SetDeadline(time.Time{}) }()

	if err := t.framer.WriteMessage(reqData); err != nil {
		return err
	}
	_, err = t.framer.ReadMessage()
	return err
}
