package packrpc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// SocketSecurityConfig defines security settings for Unix domain sockets.
type SocketSecurityConfig struct {
	// SocketDir is the directory socket files are created in.
	SocketDir string

	// SocketPerms is the permission mode for socket files. Default 0600.
	SocketPerms os.FileMode

	// DirPerms is the permission mode for SocketDir. Default 0750.
	DirPerms os.FileMode

	// AllowedUIDs restricts connections to these UIDs, if non-empty.
	AllowedUIDs []uint32

	// AllowedGIDs restricts connections to these GIDs, if non-empty.
	AllowedGIDs []uint32

	// RequireSameUser, if true, only allows connections from the UID the
	// server itself runs as.
	RequireSameUser bool
}

// DefaultSocketSecurityConfig returns the default security configuration,
// preferring /run/packrpc when running as root and falling back to a
// directory under the OS temp dir otherwise.
func DefaultSocketSecurityConfig() SocketSecurityConfig {
	cfg := SocketSecurityConfig{
		SocketPerms:     0600,
		DirPerms:        0750,
		RequireSameUser: true,
	}
	if os.Geteuid() == 0 {
		cfg.SocketDir = "/run/packrpc"
	} else {
		cfg.SocketDir = filepath.Join(os.TempDir(), "packrpc")
	}
	return cfg
}

// SecureSocketPath creates SocketDir with the configured permissions and
// returns the full path for socketName, removing any stale socket file
// left behind by a previous run.
func SecureSocketPath(config SocketSecurityConfig, socketName string) (string, error) {
	if err := os.MkdirAll(config.SocketDir, config.DirPerms); err != nil {
		return "", fmt.Errorf("create socket directory %s: %w", config.SocketDir, err)
	}
	if err := os.Chmod(config.SocketDir, config.DirPerms); err != nil {
		return "", fmt.Errorf("set permissions on socket directory: %w", err)
	}

	socketPath := filepath.Join(config.SocketDir, socketName)
	if err := os.RemoveAll(socketPath); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("remove existing socket file: %w", err)
	}
	return socketPath, nil
}

// SetSocketPermissions sets permissions on an existing socket file.
func SetSocketPermissions(socketPath string, perms os.FileMode) error {
	return os.Chmod(socketPath, perms)
}

// VerifyPeerCredentials checks a connected peer's SO_PEERCRED/LOCAL_PEERCRED
// identity against config.
func VerifyPeerCredentials(conn net.Conn, config SocketSecurityConfig) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return errors.New("connection is not a Unix domain socket")
	}

	rawConn, err := unixConn.SyscallConn()
	if err != nil {
		return fmt.Errorf("get raw connection: %w", err)
	}

	var peerCreds *PeerCredentials
	var credErr error
	if err := rawConn.Control(func(fd uintptr) {
		peerCreds, credErr = getPeerCredentials(int(fd))
	}); err != nil {
		return fmt.Errorf("control connection: %w", err)
	}
	if credErr != nil {
		return fmt.Errorf("get peer credentials: %w", credErr)
	}
	if peerCreds == nil {
		return errors.New("peer credentials are nil")
	}

	if config.RequireSameUser {
		currentUID := uint32(os.Geteuid())
		if peerCreds.UID != currentUID {
			return fmt.Errorf("peer UID %d does not match server UID %d", peerCreds.UID, currentUID)
		}
	}

	if len(config.AllowedUIDs) > 0 && !containsUint32(config.AllowedUIDs, peerCreds.UID) {
		return fmt.Errorf("peer UID %d is not in allowed list", peerCreds.UID)
	}
	if len(config.AllowedGIDs) > 0 && !containsUint32(config.AllowedGIDs, peerCreds.GID) {
		return fmt.Errorf("peer GID %d is not in allowed list", peerCreds.GID)
	}

	return nil
}

func containsUint32(list []uint32, v uint32) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// getPeerCredentials is implemented per-platform in socket_security_linux.go
// and socket_security_darwin.go.

// SecureListener wraps a Unix domain socket listener, verifying peer
// credentials on every accepted connection.
type SecureListener struct {
	net.Listener
	config SocketSecurityConfig
}

// NewSecureListener creates a listener at socketPath with the directory and
// file permissions from config already applied.
func NewSecureListener(socketPath string, config SocketSecurityConfig) (*SecureListener, error) {
	path, err := SecureSocketPath(config, filepath.Base(socketPath))
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("create listener: %w", err)
	}
	if err := SetSocketPermissions(path, config.SocketPerms); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("set socket permissions: %w", err)
	}

	return &SecureListener{Listener: listener, config: config}, nil
}

// Accept accepts a connection and rejects it if peer verification fails.
func (l *SecureListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if err := VerifyPeerCredentials(conn, l.config); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("peer verification failed: %w", err)
	}
	return conn, nil
}
