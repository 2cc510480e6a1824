//go:build !linux

package netopt

import "syscall"

// DialControl and ListenControl are no-ops outside Linux; the Linux-specific
// versions in sockopt_linux.go set TCP_NODELAY, keepalive, and SO_REUSEADDR.
func DialControl(network, address string, c syscall.RawConn) error {
	return nil
}

func ListenControl(network, address string, c syscall.RawConn) error {
	return nil
}
