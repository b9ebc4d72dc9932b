//go:build windows

package process

import (
	"os"
	"syscall"
)

// Windows has no process groups or POSIX signals; the best available
// approximations are used so the supervisor remains runnable for
// development on Windows hosts.
const (
	interruptSignal = syscall.Signal(syscall.CTRL_BREAK_EVENT)
	killSignal      = syscall.Signal(9)
)

var errProcessDone error = os.ErrProcessDone

var (
	kill = func(pid int, sig syscall.Signal) error {
		p, err := os.FindProcess(pid)
		if err != nil {
			return err
		}
		if sig == 0 {
			return nil
		}
		return p.Kill()
	}
	getpgid = func(pid int) (int, error) { return pid, nil }
	killpg  = func(pgid int, sig syscall.Signal) error { return kill(pgid, sig) }
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// Signal delivers a raw signal to a pid.
func Signal(pid int, sig syscall.Signal) error { return kill(pid, sig) }

// Interrupt delivers the graceful-stop signal to a pid.
func Interrupt(pid int) error { return kill(pid, interruptSignal) }
