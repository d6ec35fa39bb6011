package packrpc

import (
	"context"
	"fmt"

	"github.com/hexwire/packrpc/internal/protocol"
)

// Transport defines the interface for communication with a Server.
// This abstraction allows a TransportPool to use either a synchronous
// one-request-in-flight connection or a multiplexed one without changing
// its call path.
type Transport interface {
	// Call sends a request and receives a response.
	Call(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

	// Close closes the transport connection.
	Close() error

	// IsHealthy checks if the transport is healthy.
	IsHealthy() bool
}

// TransportConfig defines configuration for the transport layer.
type TransportConfig struct {
	Type    string // "uds" or "multiplexed"
	Address string // socket path
	Options map[string]interface{}
}

// NewTransport creates a new transport based on configuration.
func NewTransport(config TransportConfig, logger *Logger) (Transport, error) {
	switch config.Type {
	case "uds", "":
		return NewUDSTransport(config, logger)
	case "multiplexed":
		return NewMultiplexedTransport(config, logger)
	default:
		return nil, fmt.Errorf("packrpc: unknown transport type: %s", config.Type)
	}
}
