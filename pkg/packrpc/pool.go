package packrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hexwire/packrpc/internal/framing"
	"github.com/hexwire/packrpc/internal/protocol"
	"github.com/hexwire/packrpc/pkg/msgpack"
)

// PoolOptions configures a Pool of servers sharing one handler set.
type PoolOptions struct {
	Config       PoolConfig
	ServerOpts   ServerOptions
	RegisterFunc func(*Server) // invoked once per server to register handlers
}

// Pool manages multiple Server instances behind round-robin load
// balancing with per-server connection pooling and backpressure.
type Pool struct {
	opts     PoolOptions
	logger   *Logger
	members  []*poolMember
	nextIdx  atomic.Uint64
	shutdown atomic.Bool
	wg       sync.WaitGroup

	semaphore chan struct{}

	healthMu     sync.RWMutex
	healthStatus HealthStatus
	healthCancel context.CancelFunc
}

type poolMember struct {
	server    *Server
	connPool  chan net.Conn
	requestID atomic.Uint64
	healthy   atomic.Bool
}

// HealthStatus summarizes pool-wide health at the last check.
type HealthStatus struct {
	TotalServers   int
	HealthyServers int
	LastCheck      time.Time
}

// NewPool creates a pool of opts.Config.Servers servers, each bound to its
// own socket and sharing handlers registered by opts.RegisterFunc.
func NewPool(opts PoolOptions, logger *Logger) (*Pool, error) {
	if opts.Config.Servers <= 0 {
		return nil, errors.New("packrpc: servers must be > 0")
	}
	if opts.Config.MaxInFlight <= 0 {
		opts.Config.MaxInFlight = 10
	}
	if opts.Config.HealthInterval <= 0 {
		opts.Config.HealthInterval = 30 * time.Second
	}
	if logger == nil {
		logger = NewLogger(LoggingConfig{Level: "info", Format: "json"})
	}

	pool := &Pool{
		opts:      opts,
		logger:    logger,
		members:   make([]*poolMember, opts.Config.Servers),
		semaphore: make(chan struct{}, opts.Config.Servers*opts.Config.MaxInFlight),
	}

	for i := 0; i < opts.Config.Servers; i++ {
		serverOpts := opts.ServerOpts
		serverOpts.ID = fmt.Sprintf("server-%d", i)
		serverOpts.SocketPath = fmt.Sprintf("%s-%d", opts.ServerOpts.SocketPath, i)

		server, err := NewServer(serverOpts, logger)
		if err != nil {
			return nil, fmt.Errorf("packrpc: create server %d: %w", i, err)
		}
		if opts.RegisterFunc != nil {
			opts.RegisterFunc(server)
		}
		pool.members[i] = &poolMember{
			server:   server,
			connPool: make(chan net.Conn, opts.Config.MaxInFlight),
		}
	}

	return pool, nil
}

// Start starts every server in the pool and begins health monitoring.
func (p *Pool) Start(ctx context.Context) error {
	p.logger.Info("starting server pool", "servers", p.opts.Config.Servers)

	for i, m := range p.members {
		if err := m.server.Start(ctx); err != nil {
			for j := 0; j < i; j++ {
				_ = p.members[j].server.Stop()
			}
			return fmt.Errorf("packrpc: start server %d: %w", i, err)
		}
		m.healthy.Store(true)

		for j := 0; j < p.opts.Config.MaxInFlight; j++ {
			conn, err := net.Dial("unix", m.server.GetSocketPath())
			if err != nil {
				p.logger.Warn("failed to pre-populate connection", "error", err)
				break
			}
			select {
			case m.connPool <- conn:
			default:
				conn.Close()
			}
		}
	}

	healthCtx, cancel := context.WithCancel(context.Background())
	p.healthCancel = cancel
	p.wg.Add(1)
	go p.healthMonitor(healthCtx)

	p.updateHealthStatus()
	p.logger.Info("server pool started")
	return nil
}

// Call invokes method on a round-robin-selected server. input and output
// follow MessagePackCodec's value shapes (see toValue/fromValue); output
// must be a pointer to interface{} or msgpack.Value when non-nil.
func (p *Pool) Call(ctx context.Context, method string, input interface{}, output interface{}) error {
	if p.shutdown.Load() {
		return errors.New("packrpc: pool is shut down")
	}

	select {
	case p.semaphore <- struct{}{}:
		defer func() { <-p.semaphore }()
	case <-ctx.Done():
		return ctx.Err()
	}

	idx := p.nextIdx.Add(1) - 1
	m := p.members[idx%uint64(len(p.members))]

	if !m.healthy.Load() {
		found := false
		for _, cand := range p.members {
			if cand.healthy.Load() {
				m = cand
				found = true
				break
			}
		}
		if !found {
			return errors.New("packrpc: no healthy servers available")
		}
	}

	var conn net.Conn
	select {
	case conn = <-m.connPool:
	default:
		var err error
		conn, err = net.Dial("unix", m.server.GetSocketPath())
		if err != nil {
			return fmt.Errorf("packrpc: connect: %w", err)
		}
	}
	defer func() {
		select {
		case m.connPool <- conn:
		default:
			conn.Close()
		}
	}()

	body, err := toValue(input)
	if err != nil {
		return fmt.Errorf("packrpc: marshal input: %w", err)
	}
	req := &protocol.Request{ID: m.requestID.Add(1), Method: method, Body: body}
	reqData, err := req.Marshal()
	if err != nil {
		return err
	}

	framer := framing.NewFramer(conn)
	if err := framer.WriteMessage(reqData); err != nil {
		conn.Close()
		return fmt.Errorf("packrpc: write request: %w", err)
	}

	respData, err := framer.ReadMessage()
	if err != nil {
		conn.Close()
		return fmt.Errorf("packrpc: read response: %w", err)
	}

	resp, err := protocol.UnmarshalResponse(respData)
	if err != nil {
		return err
	}
	if !resp.OK {
		return resp.Error()
	}

	if output != nil {
		switch dst := output.(type) {
		case *interface{}:
			*dst = fromValue(resp.Body)
		case *msgpack.Value:
			*dst = resp.Body
		default:
			return fmt.Errorf("packrpc: unsupported output destination type %T", output)
		}
	}
	return nil
}

// Shutdown stops every server in the pool and drains its connections.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	p.logger.Info("shutting down server pool")
	if p.healthCancel != nil {
		p.healthCancel()
	}

	for _, m := range p.members {
		close(m.connPool)
		for conn := range m.connPool {
			conn.Close()
		}
	}

	var errs []error
	for i, m := range p.members {
		if err := m.server.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("server %d: %w", i, err))
		}
	}

	p.wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("packrpc: shutdown errors: %v", errs)
	}
	p.logger.Info("server pool shut down")
	return nil
}

// Health returns the pool's health status as of the last check.
func (p *Pool) Health() HealthStatus {
	p.healthMu.RLock()
	defer p.healthMu.RUnlock()
	return p.healthStatus
}

func (p *Pool) healthMonitor(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.Config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.updateHealthStatus()
		}
	}
}

func (p *Pool) updateHealthStatus() {
	healthy := 0
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, m := range p.members {
		if m.server.IsHealthy(ctx) {
			m.healthy.Store(true)
			healthy++
		} else {
			m.healthy.Store(false)
		}
	}

	p.healthMu.Lock()
	p.healthStatus = HealthStatus{
		TotalServers:   len(p.members),
		HealthyServers: healthy,
		LastCheck:      time.Now(),
	}
	p.healthMu.Unlock()

	if healthy < len(p.members) {
		p.logger.Warn("some servers are unhealthy", "healthy", healthy, "total", len(p.members))
	}
}
