//go:build unix

package multicast

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	"tarun-kavipurapu/p2p-send/pkg/logger"
)

// reuseControl lets several peers on one host bind the announcement port.
func reuseControl(_, _ string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			opErr = fmt.Errorf("set SO_REUSEADDR: %w", err)
			return
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			logger.Sugar.Debugf("[Multicast] SO_REUSEPORT unavailable: %v", err)
		}
	})
	if err != nil {
		return err
	}
	return opErr
}
