package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	workerStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "worker",
			Name:      "starts_total",
			Help:      "Number of worker process starts.",
		}, []string{"name"},
	)
	workerStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "worker",
			Name:      "stops_total",
			Help:      "Number of worker process stops (graceful or kill).",
		}, []string{"name"},
	)
	workerRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "worker",
			Name:      "restarts_total",
			Help:      "Number of worker group restarts.",
		}, []string{"ident"},
	)
	killSignals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "manager",
			Name:      "kills_total",
			Help:      "Number of process-group kill signals delivered.",
		},
	)
	scaleEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "manager",
			Name:      "scale_events_total",
			Help:      "Number of effective scale operations.",
		},
	)
	runningProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "manager",
			Name:      "running_processes",
			Help:      "Current number of registered worker processes.",
		},
	)
	shutdownState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "manager",
			Name:      "shutdown_state",
			Help:      "Current shutdown state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
)

var shutdownStates = []string{"RUNNING", "SHUTDOWN_REQUESTED", "KILL_REQUESTED"}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{workerStarts, workerStops, workerRestarts, killSignals, scaleEvents, runningProcesses, shutdownState}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	SetShutdownState("RUNNING")
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer. The caller wires the route and runs the server.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		workerStarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		workerStops.WithLabelValues(name).Inc()
	}
}

func IncRestart(ident string) {
	if regOK.Load() {
		workerRestarts.WithLabelValues(ident).Inc()
	}
}

func IncKill() {
	if regOK.Load() {
		killSignals.Inc()
	}
}

func IncScale() {
	if regOK.Load() {
		scaleEvents.Inc()
	}
}

func SetRunningProcesses(n int) {
	if regOK.Load() {
		runningProcesses.Set(float64(n))
	}
}

// SetShutdownState marks one state active and the others inactive.
func SetShutdownState(state string) {
	if !regOK.Load() {
		return
	}
	for _, s := range shutdownStates {
		var v float64
		if s == state {
			v = 1
		}
		shutdownState.WithLabelValues(s).Set(v)
	}
}
