//go:build unix

package childproc

import "syscall"

// newSysProcAttr places the child in its own process group so Handle.Signal
// can take down any processes the child itself forked.
func newSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
