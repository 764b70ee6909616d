//go:build windows

package harness

import "syscall"

// sessionAttr is empty on Windows, which has no Setsid.
func sessionAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}
