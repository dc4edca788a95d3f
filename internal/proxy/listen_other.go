//go:build !linux

package proxy

import "syscall"

func listenControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
