// Package warden supervises a fleet of named OS worker processes on a
// single host: it starts them, watches them, scales the transient server
// fleet, performs graceful or zero-downtime restarts, and escalates from
// graceful shutdown to a process-group kill on repeated interrupt.
package warden

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/control"
	"github.com/loykin/warden/internal/history"
	"github.com/loykin/warden/internal/logger"
	"github.com/loykin/warden/internal/manager"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/process"
	iapi "github.com/loykin/warden/internal/server"
	"github.com/loykin/warden/internal/state"
	"github.com/loykin/warden/internal/store"
	"github.com/loykin/warden/internal/store/factory"
	"github.com/loykin/warden/internal/worker"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = process.Spec

type Status = process.Status

// ProcessHandle wraps one supervised OS process.
type ProcessHandle = process.Handle

type Worker = worker.Worker

type RestartOrder = worker.RestartOrder

const (
	ShutdownFirst = worker.ShutdownFirst
	StartupFirst  = worker.StartupFirst
)

// Control channel surface. AllProcesses is the scope token addressing
// every managed group in a restart directive.
const AllProcesses = control.AllProcesses

type Publisher = control.Publisher

type Subscriber = control.Subscriber

type Pipe = control.Pipe

func NewPipe(buf int) *Pipe { return control.NewPipe(buf) }

// StateTable is the shared registry of live named processes.
type StateTable = state.Table

func NewStateTable() *StateTable { return state.NewTable() }

type HistorySink = history.Sink

type Store = store.Store

// Manager is a thin facade over internal/manager.Manager.
// It provides a stable public API for embedding.
type Manager struct{ inner *manager.Manager }

// ErrServerKilled is returned by ShutdownSignal and Kill after a
// group-wide kill; the parent is expected to exit on it.
var ErrServerKilled = manager.ErrServerKilled

// Per-group options for Manage.
type Option = manager.Option

func Workers(n int) Option { return manager.Workers(n) }
func Restartable() Option  { return manager.Restartable() }
func Untracked() Option    { return manager.Untracked() }
func NoAutoStart() Option  { return manager.NoAutoStart() }
func Transient() Option    { return manager.Transient() }

// Manager-wide options for New.
type ManagerOption = manager.ManagerOption

func WithTag(tag string) ManagerOption { return manager.WithTag(tag) }
func WithAck() ManagerOption           { return manager.WithAck() }

// New builds a supervisor with a transient fleet of numWorkers
// single-process server groups running serveSpec.
func New(numWorkers int, serveSpec Spec, pub Publisher, sub Subscriber, table *StateTable, opts ...ManagerOption) (*Manager, error) {
	inner, err := manager.New(numWorkers, serveSpec, pub, sub, table, opts...)
	if err != nil {
		return nil, err
	}
	return &Manager{inner: inner}, nil
}

func (m *Manager) Manage(ident string, spec Spec, opts ...Option) (*Worker, error) {
	return m.inner.Manage(ident, spec, opts...)
}
func (m *Manager) Serve() error                  { return m.inner.Serve() }
func (m *Manager) RemoveWorker(w *Worker)        { m.inner.RemoveWorker(w) }
func (m *Manager) Scale(n int) error             { return m.inner.Scale(n) }
func (m *Manager) Monitor()                      { m.inner.Monitor() }
func (m *Manager) Ack()                          { m.inner.Ack() }
func (m *Manager) Terminate()                    { m.inner.Terminate() }
func (m *Manager) Shutdown()                     { m.inner.Shutdown() }
func (m *Manager) ShutdownServer(ident string) error {
	return m.inner.ShutdownServer(ident)
}
func (m *Manager) ShutdownSignal() error { return m.inner.ShutdownSignal() }
func (m *Manager) Kill() error           { return m.inner.Kill() }
func (m *Manager) Restart(idents []string, reloadedFiles string, order RestartOrder) error {
	return m.inner.Restart(idents, reloadedFiles, order)
}
func (m *Manager) SetGlobalEnv(kvs []string)             { m.inner.SetGlobalEnv(kvs) }
func (m *Manager) SetStore(s Store) error                { return m.inner.SetStore(s) }
func (m *Manager) SetHistorySinks(sinks ...HistorySink)  { m.inner.SetHistorySinks(sinks...) }
func (m *Manager) Transient() []*Worker                  { return m.inner.Transient() }
func (m *Manager) Durable() []*Worker                    { return m.inner.Durable() }
func (m *Manager) TransientProcesses() []*ProcessHandle { return m.inner.TransientProcesses() }
func (m *Manager) Table() *StateTable                    { return m.inner.Table() }

type Config = cfg.FileConfig

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewStoreFromDSN builds a sqlite or postgres store from a DSN string.
func NewStoreFromDSN(dsn string) (Store, error) { return factory.NewFromDSN(dsn) }

// SetupLogging installs the configured slog handler as the process-wide
// default.
func SetupLogging(c logger.SlogConfig) { logger.Setup(c) }

// NewHTTPServer starts the inspector HTTP API using the given manager.
func NewHTTPServer(addr, basePath string, m *Manager) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, m.inner)
}

// NewInspectorHandler returns the inspector API as a mountable
// http.Handler for embedding in an existing server or mux.
func NewInspectorHandler(basePath string, m *Manager) http.Handler {
	return iapi.NewRouter(m.inner, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
