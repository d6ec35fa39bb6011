package packrpc

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestPool(t *testing.T, servers int) *Pool {
	t.Helper()
	socketBase := filepath.Join(t.TempDir(), "pool")
	opts := PoolOptions{
		Config: PoolConfig{
			Servers:        servers,
			MaxInFlight:    4,
			HealthInterval: 100 * time.Millisecond,
		},
		ServerOpts: ServerOptions{SocketPath: socketBase},
		RegisterFunc: func(s *Server) {
			s.RegisterHandler("echo", func(ctx context.Context, body interface{}) (interface{}, error) {
				return body, nil
			})
		},
	}
	pool, err := NewPool(opts, nil)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	return pool
}

func TestPoolStartCallShutdown(t *testing.T) {
	pool := newTestPool(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.Shutdown(ctx)

	var out interface{}
	if err := pool.Call(ctx, "echo", map[string]interface{}{"x": int64(1)}, &out); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	m, ok := out.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map output, got %T", out)
	}
	if m["x"] != int64(1) {
		t.Errorf("echoed x = %#v, want int64(1)", m["x"])
	}
}

func TestPoolRoundRobinsAcrossServers(t *testing.T) {
	pool := newTestPool(t, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.Shutdown(ctx)

	for i := 0; i < 9; i++ {
		var out interface{}
		if err := pool.Call(ctx, "echo", int64(i), &out); err != nil {
			t.Fatalf("Call %d failed: %v", i, err)
		}
	}
}

func TestPoolCallAfterShutdownFails(t *testing.T) {
	pool := newTestPool(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	var out interface{}
	if err := pool.Call(ctx, "echo", nil, &out); err == nil {
		t.Fatal("expected error calling a shut-down pool")
	}
}

func TestPoolHealth(t *testing.T) {
	pool := newTestPool(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.Shutdown(ctx)

	time.Sleep(150 * time.Millisecond)
	health := pool.Health()
	if health.TotalServers != 2 {
		t.Errorf("TotalServers = %d, want 2", health.TotalServers)
	}
	if health.HealthyServers != 2 {
		t.Errorf("HealthyServers = %d, want 2", health.HealthyServers)
	}
}
