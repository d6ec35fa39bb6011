//go:build linux

package packrpc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// getPeerCredentials retrieves the peer credentials using SO_PEERCRED.
func getPeerCredentials(fd int) (*PeerCredentials, error) {
	ucred, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return nil, fmt.Errorf("getsockopt SO_PEERCRED failed: %w", err)
	}
	return &PeerCredentials{
		UID: ucred.Uid,
		GID: ucred.Gid,
		PID: ucred.Pid,
	}, nil
}
