//go:build !windows

package process

import "syscall"

const (
	interruptSignal = syscall.SIGINT
	killSignal      = syscall.SIGKILL
)

var errProcessDone error = syscall.ESRCH

// Overridable for tests that need to count and order raw signal calls.
var (
	kill    = syscall.Kill
	getpgid = syscall.Getpgid
	killpg  = func(pgid int, sig syscall.Signal) error { return syscall.Kill(-pgid, sig) }
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// Signal delivers a raw signal to a pid. It exists for callers that may hold
// only a pid because the owning Handle is already gone.
func Signal(pid int, sig syscall.Signal) error { return kill(pid, sig) }

// Interrupt delivers the graceful-stop signal to a pid.
func Interrupt(pid int) error { return kill(pid, interruptSignal) }
