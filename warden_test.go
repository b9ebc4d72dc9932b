//go:build !windows

package warden

import (
	"strings"
	"testing"
)

func TestSuperviseFleetLifecycle(t *testing.T) {
	pipe := NewPipe(8)
	table := NewStateTable()
	m, err := New(2, Spec{Command: "sleep 30"}, pipe, pipe, table)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() {
		m.Terminate()
		for _, h := range m.TransientProcesses() {
			h.Join()
		}
		_ = pipe.Close()
	}()

	if err := m.Serve(); err != nil {
		t.Fatalf("serve: %v", err)
	}
	procs := m.TransientProcesses()
	if len(procs) != 2 {
		t.Fatalf("fleet processes = %d, want 2", len(procs))
	}
	for _, h := range procs {
		if !h.IsAlive() {
			t.Fatalf("process %s not alive", h.Name())
		}
		if !strings.HasPrefix(h.Name(), "Warden-Server-") {
			t.Fatalf("process name = %q", h.Name())
		}
	}

	if err := m.Scale(3); err != nil {
		t.Fatalf("scale: %v", err)
	}
	if got := len(m.TransientProcesses()); got != 3 {
		t.Fatalf("processes after scale = %d, want 3", got)
	}

	names := table.Names()
	if len(names) != 3 {
		t.Fatalf("state entries = %d, want 3", len(names))
	}
}

func TestManageDurableWorker(t *testing.T) {
	pipe := NewPipe(8)
	m, err := New(1, Spec{Command: "sleep 30"}, pipe, pipe, NewStateTable(), WithTag("Keeper"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() {
		m.Terminate()
		for _, w := range append(m.Transient(), m.Durable()...) {
			for _, h := range w.Handles() {
				h.Join()
			}
		}
		_ = pipe.Close()
	}()

	w, err := m.Manage("Reloader", Spec{Command: "sleep 30"}, Restartable(), Untracked())
	if err != nil {
		t.Fatalf("manage: %v", err)
	}
	handles := w.Handles()
	if len(handles) != 1 {
		t.Fatalf("handles = %d, want 1", len(handles))
	}
	if handles[0].Name() != "Keeper-Reloader-0" {
		t.Fatalf("name = %q", handles[0].Name())
	}
	if len(m.Durable()) != 1 {
		t.Fatalf("durable groups = %d, want 1", len(m.Durable()))
	}
}

func TestRestartDirectiveOverPipe(t *testing.T) {
	pipe := NewPipe(8)
	table := NewStateTable()
	m, err := New(1, Spec{Command: "sleep 30"}, pipe, pipe, table)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() {
		m.Terminate()
		for _, h := range m.TransientProcesses() {
			h.Join()
		}
		_ = pipe.Close()
	}()
	if err := m.Serve(); err != nil {
		t.Fatalf("serve: %v", err)
	}
	oldPID := m.TransientProcesses()[0].PID()

	if err := pipe.Send(AllProcesses); err != nil {
		t.Fatalf("send: %v", err)
	}
	// Empty message ends the monitor loop.
	if err := pipe.Send(""); err != nil {
		t.Fatalf("send sentinel: %v", err)
	}
	m.Monitor()

	procs := m.TransientProcesses()
	if len(procs) != 1 {
		t.Fatalf("processes = %d, want 1", len(procs))
	}
	if procs[0].PID() == oldPID {
		t.Fatalf("restart kept pid %d", oldPID)
	}
	if procs[0].Name() != "Warden-Server-0-0" {
		t.Fatalf("restarted name = %q", procs[0].Name())
	}
}
