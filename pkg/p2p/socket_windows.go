//go:build windows

package p2p

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// setSocketReuseAddr leaves stream listeners alone: SO_REUSEADDR on Windows
// lets another socket bind the same port, and TIME_WAIT does not block a
// restarted listener there.
func setSocketReuseAddr(network, address string, c syscall.RawConn) error {
	return nil
}

// setSocketBroadcast enables sending to broadcast addresses and port sharing
// for discovery sockets.
func setSocketBroadcast(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
		if sockErr != nil {
			return
		}
		sockErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
