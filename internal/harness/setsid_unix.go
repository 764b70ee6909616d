//go:build !windows

package harness

import "syscall"

// sessionAttr detaches version checks from the controlling terminal.
func sessionAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
