package packrpc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hexwire/packrpc/internal/protocol"
)

func startEchoServer(t *testing.T, enhanced bool) *Server {
	t.Helper()
	srv, err := NewServer(ServerOptions{
		ID:         "echo",
		SocketPath: filepath.Join(t.TempDir(), "echo.sock"),
		Enhanced:   enhanced,
	}, nil)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	srv.RegisterHandler("echo", func(ctx context.Context, body interface{}) (interface{}, error) {
		return body, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func TestUDSTransportCall(t *testing.T) {
	srv := startEchoServer(t, false)
	transport, err := NewUDSTransport(TransportConfig{Type: "uds", Address: srv.GetSocketPath()}, NewLogger(LoggingConfig{Level: "error"}))
	if err != nil {
		t.Fatalf("NewUDSTransport failed: %v", err)
	}
	defer transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := transport.Call(ctx, &protocol.Request{ID: 1, Method: "echo"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if !resp.OK {
		t.Fatalf("expected OK response, got error %q", resp.ErrorMsg)
	}
}

func TestUDSTransportIsHealthy(t *testing.T) {
	srv := startEchoServer(t, false)
	transport, err := NewUDSTransport(TransportConfig{Type: "uds", Address: srv.GetSocketPath()}, NewLogger(LoggingConfig{Level: "error"}))
	if err != nil {
		t.Fatalf("NewUDSTransport failed: %v", err)
	}
	defer transport.Close()

	if !transport.IsHealthy() {
		t.Error("expected healthy transport right after connect")
	}
	transport.Close()
	if transport.IsHealthy() {
		t.Error("expected unhealthy transport after Close")
	}
}

func TestMultiplexedTransportConcurrentCalls(t *testing.T) {
	srv := startEchoServer(t, true)
	transport, err := NewMultiplexedTransport(TransportConfig{Type: "multiplexed", Address: srv.GetSocketPath()}, NewLogger(LoggingConfig{Level: "error"}))
	if err != nil {
		t.Fatalf("NewMultiplexedTransport failed: %v", err)
	}
	defer transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const n = 8
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := transport.Call(ctx, &protocol.Request{Method: "echo"})
			errCh <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errCh; err != nil {
			t.Errorf("concurrent call failed: %v", err)
		}
	}
}

func TestMultiplexedTransportIsHealthy(t *testing.T) {
	srv := startEchoServer(t, true)
	transport, err := NewMultiplexedTransport(TransportConfig{Type: "multiplexed", Address: srv.GetSocketPath()}, NewLogger(LoggingConfig{Level: "error"}))
	if err != nil {
		t.Fatalf("NewMultiplexedTransport failed: %v", err)
	}
	if !transport.IsHealthy() {
		t.Error("expected healthy transport")
	}
	transport.Close()
	if transport.IsHealthy() {
		t.Error("expected unhealthy transport after Close")
	}
}

func TestNewTransportUnknownType(t *testing.T) {
	if _, err := NewTransport(TransportConfig{Type: "bogus"}, NewLogger(LoggingConfig{Level: "error"})); err == nil {
		t.Fatal("expected error for unknown transport type")
	}
}
