package packrpc

import (
	"context"
	"testing"
	"time"

	"github.com/hexwire/packrpc/internal/protocol"
)

func TestTransportPoolRoundRobin(t *testing.T) {
	srvA := startEchoServer(t, false)
	srvB := startEchoServer(t, false)

	pool, err := NewTransportPool([]TransportConfig{
		{Type: "uds", Address: srvA.GetSocketPath()},
		{Type: "uds", Address: srvB.GetSocketPath()},
	}, nil)
	if err != nil {
		t.Fatalf("NewTransportPool failed: %v", err)
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 4; i++ {
		resp, err := pool.Call(ctx, &protocol.Request{Method: "echo"})
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
		if !resp.OK {
			t.Fatalf("call %d returned error response: %s", i, resp.ErrorMsg)
		}
	}

	healthy, total := pool.Health()
	if total != 2 || healthy != 2 {
		t.Errorf("Health() = (%d, %d), want (2, 2)", healthy, total)
	}
}

func TestNewTransportPoolRequiresConfigs(t *testing.T) {
	if _, err := NewTransportPool(nil, nil); err == nil {
		t.Fatal("expected error for empty config list")
	}
}
