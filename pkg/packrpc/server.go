package packrpc

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hexwire/packrpc/internal/framing"
	"github.com/hexwire/packrpc/internal/protocol"
)

// ServerState is the lifecycle state of a Server.
type ServerState int32

const (
	ServerStateStopped ServerState = iota
	ServerStateStarting
	ServerStateRunning
	ServerStateStopping
)

// Handler processes one decoded Request body and returns a response body
// or an error. The body a handler receives is converted with fromValue and
// the value it returns is converted with toValue, so both follow
// MessagePackCodec's value shapes whichever Codec the server is configured
// with.
type Handler func(ctx context.Context, body interface{}) (interface{}, error)

// ServerOptions configures a single Server instance.
type ServerOptions struct {
	ID           string
	SocketPath   string
	Codec        CodecType
	Security     SecurityConfig
	Enhanced     bool
	StartTimeout time.Duration
}

// Server accepts connections on a Unix domain socket and dispatches
// decoded requests to registered handlers, replying with MessagePack-encoded
// responses. The configured Codec is checked by NewServer but does not
// change the wire format: requests and responses are always protocol
// envelopes encoded with pkg/msgpack. It plays the role the source implementation
// gives an external worker process, but runs the handler in the same
// process instead of spawning one.
type Server struct {
	opts   ServerOptions
	logger *Logger
	codec  Codec

	mu       sync.RWMutex
	handlers map[string]Handler

	listener net.Listener
	state    atomic.Int32
	wg       sync.WaitGroup

	stopCh chan struct{}
}

// NewServer creates a Server. Call RegisterHandler for each method before
// calling Start.
func NewServer(opts ServerOptions, logger *Logger) (*Server, error) {
	if opts.SocketPath == "" {
		return nil, fmt.Errorf("packrpc: socket path is required")
	}
	if logger == nil {
		logger = NewLogger(LoggingConfig{Level: "info", Format: "text"})
	}
	codec, err := NewCodec(opts.Codec)
	if err != nil {
		return nil, err
	}
	return &Server{
		opts:     opts,
		logger:   logger.WithServer(opts.ID),
		codec:    codec,
		handlers: make(map[string]Handler),
		stopCh:   make(chan struct{}),
	}, nil
}

// RegisterHandler registers a handler for method. Registering while the
// server is running is safe; new connections see it immediately.
func (s *Server) RegisterHandler(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Start binds the socket, applying the configured security mode, and
// begins accepting connections in the background.
func (s *Server) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(ServerStateStopped), int32(ServerStateStarting)) {
		return fmt.Errorf("packrpc: server already started or starting")
	}

	if err := os.Remove(s.opts.SocketPath); err != nil && !os.IsNotExist(err) {
		s.logger.WarnContext(ctx, "failed to remove stale socket file", "error", err)
	}

	listener, err := s.bind()
	if err != nil {
		s.state.Store(int32(ServerStateStopped))
		return fmt.Errorf("packrpc: bind socket: %w", err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()

	s.state.Store(int32(ServerStateRunning))
	s.logger.InfoContext(ctx, "server listening", "socket_path", s.opts.SocketPath)
	return nil
}

func (s *Server) bind() (net.Listener, error) {
	switch s.opts.Security.Mode {
	case SecurityPeerCred:
		cfg := SocketSecurityConfig{
			SocketDir:       "",
			SocketPerms:     0600,
			DirPerms:        0750,
			AllowedUIDs:     s.opts.Security.AllowedUIDs,
			AllowedGIDs:     s.opts.Security.AllowedGIDs,
			RequireSameUser: s.opts.Security.RequireSameUser,
		}
		ln, err := net.Listen("unix", s.opts.SocketPath)
		if err != nil {
			return nil, err
		}
		return &SecureListener{Listener: ln, config: cfg}, nil
	case SecurityHMAC:
		secret, err := HandshakeSecretFromHex(s.opts.Security.HMACSecretHex)
		if err != nil {
			return nil, fmt.Errorf("decode handshake secret: %w", err)
		}
		ln, err := net.Listen("unix", s.opts.SocketPath)
		if err != nil {
			return nil, err
		}
		return NewHandshakeListener(ln, secret), nil
	default:
		return net.Listen("unix", s.opts.SocketPath)
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.logger.Error("accept failed", "error", err)
				return
			}
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	var framer *framing.Framer
	if s.opts.Enhanced {
		framer = framing.NewEnhancedFramer(conn)
	} else {
		framer = framing.NewFramer(conn)
	}
	var writeMu sync.Mutex

	for {
		frame, err := framer.ReadFrame()
		if err != nil {
			return
		}
		go s.handleFrame(framer, &writeMu, frame)
	}
}

func (s *Server) handleFrame(framer *framing.Framer, writeMu *sync.Mutex, frame *framing.Frame) {
	ctx := WithTraceID(context.Background())

	req, err := protocol.UnmarshalRequest(frame.Payload)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to unmarshal request", "error", err)
		return
	}

	resp := s.dispatch(ctx, req)
	respData, err := resp.Marshal()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to marshal response", "error", err)
		return
	}

	writeMu.Lock()
	err = framer.WriteFrame(&framing.Frame{RequestID: frame.RequestID, Payload: respData})
	writeMu.Unlock()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

const healthCheckMethod = "__health__"

func (s *Server) dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	if req.Method == healthCheckMethod {
		return &protocol.Response{ID: req.ID, OK: true}
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	if !ok {
		return &protocol.Response{ID: req.ID, OK: false, ErrorMsg: fmt.Sprintf("method not found: %s", req.Method)}
	}

	body := fromValue(req.Body)
	out, err := handler(ctx, body)
	if err != nil {
		return &protocol.Response{ID: req.ID, OK: false, ErrorMsg: err.Error()}
	}

	mv, err := toValue(out)
	if err != nil {
		return &protocol.Response{ID: req.ID, OK: false, ErrorMsg: fmt.Sprintf("marshal result: %v", err)}
	}
	return &protocol.Response{ID: req.ID, OK: true, Body: mv}
}

// Stop closes the listener and waits for in-flight connections to drain.
func (s *Server) Stop() error {
	if !s.state.CompareAndSwap(int32(ServerStateRunning), int32(ServerStateStopping)) {
		if !s.state.CompareAndSwap(int32(ServerStateStarting), int32(ServerStateStopping)) {
			return nil
		}
	}

	close(s.stopCh)
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()

	if err := os.Remove(s.opts.SocketPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove socket file", "error", err)
	}

	s.state.Store(int32(ServerStateStopped))
	s.logger.Info("server stopped")
	return nil
}

// IsRunning reports whether the server is currently accepting connections.
func (s *Server) IsRunning() bool {
	return ServerState(s.state.Load()) == ServerStateRunning
}

// GetState returns the server's current lifecycle state.
func (s *Server) GetState() ServerState {
	return ServerState(s.state.Load())
}

// GetSocketPath returns the socket path this server binds to.
func (s *Server) GetSocketPath() string {
	return s.opts.SocketPath
}

// IsHealthy dials the socket to confirm the server is actually accepting
// connections, not just reporting a running state.
func (s *Server) IsHealthy(ctx context.Context) bool {
	if ServerState(s.state.Load()) != ServerStateRunning {
		return false
	}
	dialer := net.Dialer{Timeout: 1 * time.Second}
	conn, err := dialer.DialContext(ctx, "unix", s.opts.SocketPath)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
