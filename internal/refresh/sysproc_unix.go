//go:build unix

package refresh

import "syscall"

// detachedProcAttr starts the child in its own session so it is not killed
// with the parent's terminal or process group.
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
