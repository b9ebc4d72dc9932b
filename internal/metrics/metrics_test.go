package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestCountersAfterRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}

	IncStart("Warden-Server-0-0")
	IncStart("Warden-Server-0-0")
	IncStop("Warden-Server-0-0")
	IncRestart("Server-0")
	IncKill()
	IncScale()
	SetRunningProcesses(3)

	if got := testutil.ToFloat64(workerStarts.WithLabelValues("Warden-Server-0-0")); got != 2 {
		t.Fatalf("starts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(workerStops.WithLabelValues("Warden-Server-0-0")); got != 1 {
		t.Fatalf("stops = %v, want 1", got)
	}
	if got := testutil.ToFloat64(workerRestarts.WithLabelValues("Server-0")); got != 1 {
		t.Fatalf("restarts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(runningProcesses); got != 3 {
		t.Fatalf("running = %v, want 3", got)
	}
}

func TestSetShutdownStateOneHot(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	SetShutdownState("SHUTDOWN_REQUESTED")
	if got := testutil.ToFloat64(shutdownState.WithLabelValues("SHUTDOWN_REQUESTED")); got != 1 {
		t.Fatalf("active state = %v, want 1", got)
	}
	for _, s := range []string{"RUNNING", "KILL_REQUESTED"} {
		if got := testutil.ToFloat64(shutdownState.WithLabelValues(s)); got != 0 {
			t.Fatalf("%s = %v, want 0", s, got)
		}
	}
}
