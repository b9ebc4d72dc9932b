package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	gops "github.com/shirou/gopsutil/v4/process"
)

// Handle wraps exactly one OS process. A Handle is single-use: once the
// process has been started it can never be started again; restarts replace
// the Handle with a fresh one under the same name.
type Handle struct {
	mu        sync.Mutex
	spec      Spec
	pid       int
	started   bool
	finished  bool
	startedAt time.Time
	stoppedAt time.Time
	exitErr   error
	waitDone  chan struct{}
	outCloser io.WriteCloser
	errCloser io.WriteCloser
}

// Status is an externally consumable snapshot of a Handle.
type Status struct {
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	ExitErr   error     `json:"exit_error,omitempty"`
}

func NewHandle(spec Spec) *Handle { return &Handle{spec: spec} }

func (h *Handle) Name() string { return h.spec.Name }

func (h *Handle) Spec() Spec {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.spec
}

// PID returns the OS process id, or 0 before the process has started.
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pid
}

// Start spawns the OS process in its own process group and begins reaping
// it in the background. Starting a Handle twice is an error: a terminated
// handle is replaced, never revived.
func (h *Handle) Start() error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return fmt.Errorf("process %s already started", h.spec.Name)
	}
	spec := h.spec
	h.mu.Unlock()

	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	env := append([]string(nil), spec.Env...)
	env = append(env, spec.SettingsEnv()...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	cmd.SysProcAttr = sysProcAttr()

	var outW, errW io.WriteCloser
	if spec.Log.Dir != "" || spec.Log.StdoutPath != "" || spec.Log.StderrPath != "" {
		if spec.Log.Dir != "" {
			_ = os.MkdirAll(spec.Log.Dir, 0o750)
		}
		outW, errW, _ = spec.Log.Writers(spec.Name)
	}
	if outW != nil {
		cmd.Stdout = outW
	} else {
		cmd.Stdout, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}
	if errW != nil {
		cmd.Stderr = errW
	} else {
		cmd.Stderr, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}

	if err := cmd.Start(); err != nil {
		if outW != nil {
			_ = outW.Close()
		}
		if errW != nil {
			_ = errW.Close()
		}
		return fmt.Errorf("start %s: %w", spec.Name, err)
	}

	h.mu.Lock()
	h.started = true
	h.pid = cmd.Process.Pid
	h.startedAt = time.Now()
	h.waitDone = make(chan struct{})
	h.outCloser = outW
	h.errCloser = errW
	done := h.waitDone
	h.mu.Unlock()

	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.finished = true
		h.stoppedAt = time.Now()
		h.exitErr = err
		out, errc := h.outCloser, h.errCloser
		h.outCloser, h.errCloser = nil, nil
		h.mu.Unlock()
		if out != nil {
			_ = out.Close()
		}
		if errc != nil {
			_ = errc.Close()
		}
		close(done)
	}()
	return nil
}

// Terminate requests a graceful stop by delivering the interrupt signal to
// the process. It does not wait for exit; pair with Join for that.
func (h *Handle) Terminate() error {
	pid := h.PID()
	if pid == 0 {
		return errors.New("process not started")
	}
	if err := kill(pid, interruptSignal); err != nil && !errors.Is(err, errProcessDone) {
		return err
	}
	return nil
}

// KillGroup resolves the process group of this handle's pid and delivers a
// non-ignorable kill signal to the whole group.
func (h *Handle) KillGroup() error {
	pid := h.PID()
	if pid == 0 {
		return nil
	}
	pgid, err := getpgid(pid)
	if err != nil {
		return err
	}
	return killpg(pgid, killSignal)
}

// IsAlive reports whether the OS process exists and is not a zombie.
func (h *Handle) IsAlive() bool {
	h.mu.Lock()
	pid, started, finished := h.pid, h.started, h.finished
	h.mu.Unlock()
	if !started || finished || pid == 0 {
		return false
	}
	if err := kill(pid, 0); err != nil {
		return false
	}
	// A quickly-exiting child lingers as a zombie until reaped; not alive.
	if p, err := gops.NewProcess(int32(pid)); err == nil {
		if sts, err := p.Status(); err == nil {
			for _, st := range sts {
				if st == gops.Zombie {
					return false
				}
			}
		}
	}
	return true
}

// Join blocks until the process has exited and been reaped.
// It is a no-op for a handle that never started.
func (h *Handle) Join() {
	h.mu.Lock()
	done := h.waitDone
	h.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Snapshot returns a copy of the current status.
func (h *Handle) Snapshot() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Status{
		Name:      h.spec.Name,
		PID:       h.pid,
		Running:   h.started && !h.finished,
		StartedAt: h.startedAt,
		StoppedAt: h.stoppedAt,
		ExitErr:   h.exitErr,
	}
}
