//go:build !windows

package process

import (
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestHandleStartAndJoin(t *testing.T) {
	h := NewHandle(Spec{Name: "short", Command: "sleep 0.1"})
	if err := h.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if h.PID() == 0 {
		t.Fatalf("pid not populated")
	}
	h.Join()
	if h.IsAlive() {
		t.Fatalf("process still alive after join")
	}
	st := h.Snapshot()
	if st.Running {
		t.Fatalf("snapshot running after exit: %+v", st)
	}
	if st.StoppedAt.IsZero() {
		t.Fatalf("stopped time not recorded")
	}
}

func TestHandleDoubleStart(t *testing.T) {
	h := NewHandle(Spec{Name: "dup", Command: "sleep 0.1"})
	if err := h.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.Join()
	err := h.Start()
	if err == nil {
		t.Fatalf("second start must fail")
	}
	if !strings.Contains(err.Error(), "already started") {
		t.Fatalf("err = %v", err)
	}
}

func TestHandleTerminate(t *testing.T) {
	h := NewHandle(Spec{Name: "term", Command: "sleep 30"})
	if err := h.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !h.IsAlive() {
		t.Fatalf("expected alive")
	}
	if err := h.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	done := make(chan struct{})
	go func() {
		h.Join()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("process did not exit after interrupt")
	}
	if h.IsAlive() {
		t.Fatalf("alive after termination")
	}
}

func TestHandleTerminateBeforeStart(t *testing.T) {
	h := NewHandle(Spec{Name: "never", Command: "sleep 1"})
	if err := h.Terminate(); err == nil {
		t.Fatalf("terminating an unstarted handle must error")
	}
	// Join on an unstarted handle is a no-op, not a hang.
	h.Join()
}

func TestHandleKillGroupSignals(t *testing.T) {
	var mu sync.Mutex
	var sent []syscall.Signal
	origKill, origGetpgid, origKillpg := kill, getpgid, killpg
	defer func() { kill, getpgid, killpg = origKill, origGetpgid, origKillpg }()
	getpgid = func(pid int) (int, error) { return pid, nil }
	killpg = func(pgid int, sig syscall.Signal) error {
		mu.Lock()
		sent = append(sent, sig)
		mu.Unlock()
		return nil
	}

	h := NewHandle(Spec{Name: "grp", Command: "sleep 30"})
	if err := h.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.KillGroup(); err != nil {
		t.Fatalf("kill group: %v", err)
	}
	mu.Lock()
	got := append([]syscall.Signal(nil), sent...)
	mu.Unlock()
	if len(got) != 1 || got[0] != syscall.SIGKILL {
		t.Fatalf("signals = %v", got)
	}

	killpg = origKillpg
	_ = h.KillGroup()
	h.Join()
}

func TestHandleTerminateSwallowsGoneProcess(t *testing.T) {
	origKill := kill
	defer func() { kill = origKill }()
	kill = func(pid int, sig syscall.Signal) error { return syscall.ESRCH }

	h := NewHandle(Spec{Name: "gone", Command: "sleep 0.1"})
	if err := h.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.Terminate(); err != nil {
		t.Fatalf("terminate on a reaped process must be a no-op, got %v", err)
	}
	kill = origKill
	h.Join()
}

func TestHandleChildEnv(t *testing.T) {
	h := NewHandle(Spec{
		Name:     "env",
		Command:  "sh -c 'test \"$FOO\" = bar && test \"$SET_A\" = 1'",
		Env:      []string{"FOO=bar"},
		Settings: map[string]string{"SET_A": "1"},
	})
	if err := h.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.Join()
	if st := h.Snapshot(); st.ExitErr != nil {
		t.Fatalf("child did not see injected env: %v", st.ExitErr)
	}
}
