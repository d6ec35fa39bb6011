package packrpc

import (
	"fmt"
	"os"
	"path/filepath"
)

// SocketManager manages the lifecycle of Unix domain socket files for a
// pool of listening servers.
type SocketManager struct {
	dir         string
	prefix      string
	permissions os.FileMode
}

// NewSocketManager creates a socket manager from config.
func NewSocketManager(cfg SocketConfig) *SocketManager {
	return &SocketManager{
		dir:         cfg.Dir,
		prefix:      cfg.Prefix,
		permissions: os.FileMode(cfg.Permissions),
	}
}

// GenerateSocketPath returns a unique socket path for a server instance.
func (sm *SocketManager) GenerateSocketPath(serverID string) string {
	filename := fmt.Sprintf("%s-%s.sock", sm.prefix, serverID)
	return filepath.Join(sm.dir, filename)
}

// CleanupSocket removes a socket file if present.
func (sm *SocketManager) CleanupSocket(socketPath string) error {
	if _, err := os.Stat(socketPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat socket file: %w", err)
	}
	if err := os.Remove(socketPath); err != nil {
		return fmt.Errorf("remove socket file: %w", err)
	}
	return nil
}

// CleanupAllSockets removes every socket file matching this manager's prefix.
func (sm *SocketManager) CleanupAllSockets() error {
	pattern := filepath.Join(sm.dir, fmt.Sprintf("%s-*.sock", sm.prefix))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("glob socket files: %w", err)
	}

	var lastErr error
	for _, socketPath := range matches {
		if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
			lastErr = fmt.Errorf("remove socket %s: %w", socketPath, err)
		}
	}
	return lastErr
}

// EnsureSocketDir creates the socket directory if it doesn't exist.
func (sm *SocketManager) EnsureSocketDir() error {
	if err := os.MkdirAll(sm.dir, 0755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	return nil
}

// SetSocketPermissions applies this manager's configured permission mode
// to an existing socket file.
func (sm *SocketManager) SetSocketPermissions(socketPath string) error {
	if err := os.Chmod(socketPath, sm.permissions); err != nil {
		return fmt.Errorf("set socket permissions: %w", err)
	}
	return nil
}
