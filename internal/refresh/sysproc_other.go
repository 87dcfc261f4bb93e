//go:build !unix

package refresh

import "syscall"

func detachedProcAttr() *syscall.SysProcAttr {
	return nil
}
