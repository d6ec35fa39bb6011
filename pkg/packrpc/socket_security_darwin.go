//go:build darwin

package packrpc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// getPeerCredentials retrieves the peer credentials using LOCAL_PEERCRED.
// macOS has no PID in peer credentials, so PID is always reported as 0.
func getPeerCredentials(fd int) (*PeerCredentials, error) {
	cred, err := unix.GetsockoptXucred(fd, unix.SOL_LOCAL, unix.LOCAL_PEERCRED)
	if err != nil {
		return nil, fmt.Errorf("getsockopt LOCAL_PEERCRED failed: %w", err)
	}
	gid := uint32(0)
	if cred.Ngroups > 0 {
		gid = cred.Groups[0]
	}
	return &PeerCredentials{
		UID: cred.Uid,
		GID: gid,
		PID: 0,
	}, nil
}
