package packrpc

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/hexwire/packrpc/internal/framing"
	"github.com/hexwire/packrpc/internal/protocol"
)

func newTestServer(t *testing.T, opts ServerOptions) *Server {
	t.Helper()
	if opts.SocketPath == "" {
		opts.SocketPath = filepath.Join(t.TempDir(), "test.sock")
	}
	srv, err := NewServer(opts, nil)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv
}

func TestServerStartStop(t *testing.T) {
	srv := newTestServer(t, ServerOptions{ID: "s1"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	if !srv.IsRunning() {
		t.Error("server should report running")
	}
	conn, err := net.Dial("unix", srv.GetSocketPath())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	conn.Close()

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if srv.IsRunning() {
		t.Error("server should not report running after Stop")
	}
}

func TestServerDispatchesToRegisteredHandler(t *testing.T) {
	srv := newTestServer(t, ServerOptions{ID: "s1"})
	srv.RegisterHandler("echo", func(ctx context.Context, body interface{}) (interface{}, error) {
		return body, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	conn, err := net.Dial("unix", srv.GetSocketPath())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	framer := framing.NewFramer(conn)
	req := &protocol.Request{ID: 1, Method: "echo", Body: nil}
	data, err := req.Marshal()
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if err := framer.WriteMessage(data); err != nil {
		t.Fatalf("write request: %v", err)
	}

	respData, err := framer.ReadMessage()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	resp, err := protocol.UnmarshalResponse(respData)
	if err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.OK {
		t.Fatalf("expected OK response, got error %q", resp.ErrorMsg)
	}
}

func TestServerUnknownMethod(t *testing.T) {
	srv := newTestServer(t, ServerOptions{ID: "s1"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	conn, err := net.Dial("unix", srv.GetSocketPath())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	framer := framing.NewFramer(conn)
	req := &protocol.Request{ID: 1, Method: "does_not_exist"}
	data, _ := req.Marshal()
	framer.WriteMessage(data)

	respData, err := framer.ReadMessage()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	resp, err := protocol.UnmarshalResponse(respData)
	if err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.OK {
		t.Fatal("expected failure response for unknown method")
	}
}

func TestServerHealthCheck(t *testing.T) {
	srv := newTestServer(t, ServerOptions{ID: "s1"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	if !srv.IsHealthy(ctx) {
		t.Error("expected server to be healthy")
	}
}
