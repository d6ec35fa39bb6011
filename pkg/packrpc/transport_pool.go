package packrpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hexwire/packrpc/internal/protocol"
)

// TransportPool load-balances calls across a fixed set of Transports,
// falling back to the next healthy one when a call fails. Unlike Pool, it
// does not own server lifecycles; it is useful when the caller already has
// independent connections (or remote addresses) to round-robin across.
type TransportPool struct {
	transports []Transport
	nextIdx    atomic.Uint64
	logger     *Logger
	mu         sync.RWMutex
}

// NewTransportPool dials one transport per config and returns the pool.
func NewTransportPool(configs []TransportConfig, logger *Logger) (*TransportPool, error) {
	if len(configs) == 0 {
		return nil, errors.New("packrpc: at least one transport config is required")
	}
	if logger == nil {
		logger = NewLogger(LoggingConfig{Level: "info", Format: "json"})
	}

	pool := &TransportPool{
		transports: make([]Transport, 0, len(configs)),
		logger:     logger,
	}

	for i, config := range configs {
		transport, err := NewTransport(config, logger)
		if err != nil {
			for _, t := range pool.transports {
				_ = t.Close()
			}
			return nil, fmt.Errorf("packrpc: create transport %d: %w", i, err)
		}
		pool.transports = append(pool.transports, transport)
	}

	return pool, nil
}

// Call round-robins across healthy transports, trying the next on failure.
func (p *TransportPool) Call(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.transports) == 0 {
		return nil, errors.New("packrpc: no transports available")
	}

	startIdx := p.nextIdx.Add(1) - 1
	for i := 0; i < len(p.transports); i++ {
		idx := (startIdx + uint64(i)) % uint64(len(p.transports))
		transport := p.transports[idx]

		if !transport.IsHealthy() {
			continue
		}
		resp, err := transport.Call(ctx, req)
		if err == nil {
			return resp, nil
		}
		p.logger.Warn("transport call failed, trying next", "index", idx, "error", err)
	}

	return nil, errors.New("packrpc: all transports failed")
}

// Close closes every transport in the pool.
func (p *TransportPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for i, transport := range p.transports {
		if err := transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("transport %d: %w", i, err))
		}
	}
	p.transports = nil

	if len(errs) > 0 {
		return fmt.Errorf("packrpc: close transports: %v", errs)
	}
	return nil
}

// Health reports how many of the pool's transports are currently healthy.
func (p *TransportPool) Health() (healthy, total int) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total = len(p.transports)
	for _, transport := range p.transports {
		if transport.IsHealthy() {
			healthy++
		}
	}
	return
}
