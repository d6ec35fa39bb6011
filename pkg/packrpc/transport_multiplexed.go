package packrpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hexwire/packrpc/internal/framing"
	"github.com/hexwire/packrpc/internal/protocol"
)

// MultiplexedTransport implements Transport with request/response
// correlation by ID, allowing several requests to be in flight at once
// over a single connection.
type MultiplexedTransport struct {
	config TransportConfig
	logger *Logger
	conn   net.Conn
	framer *framing.Framer

	requestID atomic.Uint64
	pending   map[uint64]*pendingCall
	mu        sync.RWMutex

	closed    atomic.Bool
	closeOnce sync.Once
	closeCh   chan struct{}

	readerWg sync.WaitGroup
}

type pendingCall struct {
	responseCh chan *protocol.Response
	errCh      chan error
	timer      *time.Timer
}

// NewMultiplexedTransport creates a multiplexed transport and starts its
// background reader.
func NewMultiplexedTransport(config TransportConfig, logger *Logger) (*MultiplexedTransport, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("packrpc: address is required for multiplexed transport")
	}

	t := &MultiplexedTransport{
		config:  config,
		logger:  logger,
		pending: make(map[uint64]*pendingCall),
		closeCh: make(chan struct{}),
	}
	if err := t.connect(); err != nil {
		return nil, err
	}

	t.readerWg.Add(1)
	go t.readLoop()
	return t, nil
}

func (t *MultiplexedTransport) connect() error {
	timeout := 5 * time.Second
	if v, ok := t.config.Options["timeout"].(time.Duration); ok {
		timeout = v
	}
	conn, err := net.DialTimeout("unix", t.config.Address, timeout)
	if err != nil {
		return fmt.Errorf("packrpc: connect to %s: %w", t.config.Address, err)
	}
	t.conn = conn
	t.framer = framing.NewEnhancedFramer(conn)
	t.logger.Debug("multiplexed transport connected", "address", t.config.Address)
	return nil
}

func (t *MultiplexedTransport) readLoop() {
	defer t.readerWg.Done()

	for {
		select {
		case <-t.closeCh:
			return
		default:
		}

		frame, err := t.framer.ReadFrame()
		if err != nil {
			if t.closed.Load() {
				return
			}
			t.logger.Error("failed to read frame", "error", err)
			t.handleReadError(err)
			return
		}

		resp, err := protocol.UnmarshalResponse(frame.Payload)
		if err != nil {
			t.logger.Error("failed to unmarshal response", "error", err)
			continue
		}
		resp.ID = frame.RequestID

		t.mu.RLock()
		call, ok := t.pending[resp.ID]
		t.mu.RUnlock()
		if !ok {
			t.logger.Warn("received response for unknown request", "id", resp.ID)
			continue
		}

		select {
		case call.responseCh <- resp:
		case <-call.timer.C:
		}

		t.mu.Lock()
		delete(t.pending, resp.ID)
		t.mu.Unlock()
		call.timer.Stop()
	}
}

func (t *MultiplexedTransport) handleReadError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, call := range t.pending {
		select {
		case call.errCh <- fmt.Errorf("packrpc: connection error: %w", err):
		default:
		}
		call.timer.Stop()
		delete(t.pending, id)
	}
	t.closed.Store(true)
}

// Call assigns req a fresh request ID, sends it, and waits for its
// correlated response.
func (t *MultiplexedTransport) Call(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if t.closed.Load() {
		return nil, fmt.Errorf("packrpc: transport is closed")
	}

	requestID := t.requestID.Add(1)
	req.ID = requestID

	call := &pendingCall{
		responseCh: make(chan *protocol.Response, 1),
		errCh:      make(chan error, 1),
	}
	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	call.timer = time.NewTimer(timeout)

	t.mu.Lock()
	t.pending[requestID] = call
	t.mu.Unlock()
	defer func() {
		call.timer.Stop()
		t.mu.Lock()
		delete(t.pending, requestID)
		t.mu.Unlock()
	}()

	reqData, err := req.Marshal()
	if err != nil {
		return nil, fmt.Errorf("packrpc: marshal request: %w", err)
	}

	if err := t.framer.WriteFrame(&framing.Frame{RequestID: requestID, Payload: reqData}); err != nil {
		return nil, fmt.Errorf("packrpc: write frame: %w", err)
	}

	select {
	case resp := <-call.responseCh:
		return resp, nil
	case err := <-call.errCh:
		return nil, err
	case <-call.timer.C:
		return nil, fmt.Errorf("packrpc: request timeout after %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts down the connection and fails any in-flight calls.
func (t *MultiplexedTransport) Close() error {
	var closeErr error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.closeCh)

		if t.conn != nil {
			closeErr = t.conn.Close()
		}
		t.readerWg.Wait()

		t.mu.Lock()
		for id, call := range t.pending {
			select {
			case call.errCh <- fmt.Errorf("packrpc: transport closed"):
			default:
			}
			call.timer.Stop()
			delete(t.pending, id)
		}
		t.mu.Unlock()
	})
	return closeErr
}

// IsHealthy reports whether the transport's connection is still open.
func (t *MultiplexedTransport) IsHealthy() bool {
	return !t.closed.Load() && t.conn != nil
}
