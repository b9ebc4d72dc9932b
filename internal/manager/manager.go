package manager

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/warden/internal/control"
	"github.com/loykin/warden/internal/env"
	"github.com/loykin/warden/internal/history"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/process"
	"github.com/loykin/warden/internal/state"
	"github.com/loykin/warden/internal/store"
	"github.com/loykin/warden/internal/worker"
)

// ServerLabel is the ident prefix of the transient server fleet created at
// construction and grown or shrunk by Scale.
const ServerLabel = "Server"

// State is the shutdown progression of a Manager. Transitions are
// monotonic; a manager never returns to an earlier state.
type State int32

const (
	Running State = iota
	ShutdownRequested
	KillRequested
)

func (s State) String() string {
	switch s {
	case ShutdownRequested:
		return "SHUTDOWN_REQUESTED"
	case KillRequested:
		return "KILL_REQUESTED"
	default:
		return "RUNNING"
	}
}

// Manager owns the transient and durable worker registries, the control
// channel, and the shutdown state machine. All registry mutation funnels
// through its mutex; the monitor loop and the signal path are the only
// asynchronous callers and both end up here.
type Manager struct {
	mu sync.Mutex
	// restartMu serializes restart sweeps without pinning mu, so the
	// shutdown and kill paths stay reachable while a startup-first
	// restart waits for its ack.
	restartMu sync.Mutex
	tag       string
	serveSpec process.Spec
	table     *state.Table
	transient *worker.Registry
	durable   *worker.Registry
	pub       control.Publisher
	sub       control.Subscriber

	shutdown   atomic.Int32
	requireAck bool
	ackCh      chan struct{}

	envM *env.Env

	// persistMu guards the store and sink fields; lifecycle recording
	// happens on the restart path, which does not hold mu.
	persistMu sync.Mutex
	st        store.Store
	histSinks []history.Sink
}

// ManagerOption adjusts manager-wide behavior at construction.
type ManagerOption func(*Manager)

// WithTag overrides the supervisor tag prefixed to every process name.
func WithTag(tag string) ManagerOption {
	return func(m *Manager) { m.tag = tag }
}

// WithAck makes startup-first restarts block on Ack before retiring the
// old processes. Without it the zero-downtime window closes immediately.
func WithAck() ManagerOption {
	return func(m *Manager) { m.requireAck = true }
}

// New builds a manager with a transient server fleet of numWorkers
// single-process groups, each running serveSpec. The fleet is registered
// but not started; call Serve or start groups individually.
func New(numWorkers int, serveSpec process.Spec, pub control.Publisher, sub control.Subscriber, table *state.Table, opts ...ManagerOption) (*Manager, error) {
	if numWorkers < 1 {
		return nil, ErrNoWorkers
	}
	if table == nil {
		table = state.NewTable()
	}
	m := &Manager{
		tag:       worker.DefaultTag,
		serveSpec: serveSpec,
		table:     table,
		transient: worker.NewRegistry(),
		durable:   worker.NewRegistry(),
		pub:       pub,
		sub:       sub,
		ackCh:     make(chan struct{}, 1),
		envM:      env.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	for i := 0; i < numWorkers; i++ {
		ident := fmt.Sprintf("%s-%d", ServerLabel, i)
		if _, err := m.Manage(ident, serveSpec, Transient(), Restartable(), deferStart()); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SetGlobalEnv registers "KEY=VALUE" pairs merged into the environment of
// every process spawned after the call.
func (m *Manager) SetGlobalEnv(kvs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, kv := range kvs {
		if k, v, ok := splitKV(kv); ok {
			m.envM.Set(k, v)
		}
	}
}

// SetStore configures a persistence store recording process lifecycle
// events. It ensures the schema before first use.
func (m *Manager) SetStore(s store.Store) error {
	m.persistMu.Lock()
	m.st = s
	m.persistMu.Unlock()
	if s == nil {
		return nil
	}
	return s.EnsureSchema(context.Background())
}

// SetHistorySinks configures external history sinks. Passing no sinks
// clears the list.
func (m *Manager) SetHistorySinks(sinks ...history.Sink) {
	m.persistMu.Lock()
	m.histSinks = append([]history.Sink(nil), sinks...)
	m.persistMu.Unlock()
}

// Manage registers a worker group and, unless NoAutoStart is given, spawns
// its processes. The returned Worker lets the caller drive the group
// directly, e.g. for a later RemoveWorker.
func (m *Manager) Manage(ident string, spec process.Spec, opts ...Option) (*worker.Worker, error) {
	cfg := defaultManageConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.transient && !cfg.restartable {
		return nil, ErrTransientNotRestartable
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transient.Get(ident); ok {
		return nil, fmt.Errorf("worker %s: %w", ident, ErrWorkerExists)
	}
	if _, ok := m.durable.Get(ident); ok {
		return nil, fmt.Errorf("worker %s: %w", ident, ErrWorkerExists)
	}

	spec.Env = m.envM.Merge(spec.Env)
	w, err := worker.New(worker.Config{
		Ident:       ident,
		Tag:         m.tag,
		Spec:        spec,
		Num:         cfg.workers,
		Restartable: cfg.restartable,
		Tracked:     cfg.tracked,
		AutoStart:   cfg.autoStart,
		Transient:   cfg.transient,
	}, m.table)
	if err != nil {
		return nil, err
	}
	reg := m.durable
	if cfg.transient {
		reg = m.transient
	}
	if err := reg.Put(w); err != nil {
		return nil, err
	}
	if cfg.autoStart && !cfg.deferStart {
		if err := m.startWorker(w); err != nil {
			reg.Delete(ident)
			return nil, err
		}
	}
	slog.Info("managing worker", "ident", ident, "workers", cfg.workers, "transient", cfg.transient, "tracked", cfg.tracked)
	return w, nil
}

// Serve starts every registered group that has auto-start set and is not
// running yet, then returns. Monitor and the signal path drive the rest of
// the lifetime.
func (m *Manager) Serve() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range append(m.transient.All(), m.durable.All()...) {
		if !w.AutoStart() || len(w.Handles()) > 0 {
			continue
		}
		if err := m.startWorker(w); err != nil {
			return err
		}
	}
	return nil
}

// startWorker spawns a group and records the starts. Callers hold m.mu.
func (m *Manager) startWorker(w *worker.Worker) error {
	if err := w.StartAll(); err != nil {
		return err
	}
	for _, h := range w.Handles() {
		m.recordStart(h)
	}
	metrics.SetRunningProcesses(m.table.Len())
	return nil
}

// RemoveWorker deletes an untracked, fully-stopped group. Refusals are
// logged and swallowed so a bad directive cannot take the supervisor down.
func (m *Manager) RemoveWorker(w *worker.Worker) {
	if w.Tracked() {
		slog.Error("worker is tracked and cannot be removed", "ident", w.Ident())
		return
	}
	if w.HasAliveProcesses() {
		slog.Error("worker has alive processes and cannot be removed", "ident", w.Ident())
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w.PurgeState()
	if w.Transient() {
		m.transient.Delete(w.Ident())
	} else {
		m.durable.Delete(w.Ident())
	}
	metrics.SetRunningProcesses(m.table.Len())
	slog.Info("removed worker", "ident", w.Ident())
}

// Scale grows or shrinks the transient server fleet to exactly n groups.
// Durable workers are never affected.
func (m *Manager) Scale(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: requested %d", ErrScale, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.transient.Len()
	if n == current {
		slog.Info("no change needed", "workers", n)
		return nil
	}
	metrics.IncScale()
	if n > current {
		// Grow into the lowest free indexes so a shrink/grow cycle keeps
		// the fleet contiguous.
		added := 0
		for idx := 0; added < n-current; idx++ {
			ident := fmt.Sprintf("%s-%d", ServerLabel, idx)
			if _, ok := m.transient.Get(ident); ok {
				continue
			}
			spec := m.serveSpec
			spec.Env = m.envM.Merge(spec.Env)
			w, err := worker.New(worker.Config{
				Ident:       ident,
				Tag:         m.tag,
				Spec:        spec,
				Num:         1,
				Restartable: true,
				Tracked:     true,
				AutoStart:   true,
				Transient:   true,
			}, m.table)
			if err != nil {
				return err
			}
			if err := m.transient.Put(w); err != nil {
				return err
			}
			if err := m.startWorker(w); err != nil {
				m.transient.Delete(ident)
				return err
			}
			added++
		}
		slog.Info("scaled up", "from", current, "to", n)
		return nil
	}
	// Shrink from the highest fleet index down. Idents sort
	// lexicographically in the registry, so order by the numeric suffix.
	for _, ident := range fleetIdentsDescending(m.transient.Idents()) {
		if m.transient.Len() <= n {
			break
		}
		w, ok := m.transient.Get(ident)
		if !ok {
			continue
		}
		m.stopWorker(w)
		w.PurgeState()
		m.transient.Delete(w.Ident())
	}
	metrics.SetRunningProcesses(m.table.Len())
	slog.Info("scaled down", "from", current, "to", n)
	return nil
}

// stopWorker terminates a group, waits for exit, and records the stops.
// Callers hold m.mu.
func (m *Manager) stopWorker(w *worker.Worker) {
	handles := w.Handles()
	w.StopAll()
	for _, h := range handles {
		h.Join()
		m.recordStop(h)
	}
}

// Restart respawns the named groups, or every registered group when idents
// is nil. With StartupFirst ordering it starts all replacements, waits for
// a single readiness ack, then retires the displaced processes. Restarts
// are serialized among themselves but hold the registry mutex only while
// resolving targets; Kill and Shutdown must stay reachable while a
// startup-first restart is pending on its ack.
func (m *Manager) Restart(idents []string, reloadedFiles string, order worker.RestartOrder) error {
	m.restartMu.Lock()
	defer m.restartMu.Unlock()

	targets, err := m.resolveTargets(idents)
	if err != nil {
		return err
	}

	slog.Info("restarting workers", "count", len(targets), "order", order.String(), "reloaded_files", reloadedFiles)

	if order == worker.StartupFirst {
		type displaced struct {
			w   *worker.Worker
			old []*process.Handle
		}
		var pending []displaced
		for _, w := range targets {
			if !w.Restartable() {
				slog.Warn("skipping restart of non-restartable worker", "ident", w.Ident())
				continue
			}
			old, err := w.StartReplacements()
			if err != nil {
				return err
			}
			for _, h := range w.Handles() {
				m.recordStart(h)
			}
			metrics.IncRestart(w.Ident())
			pending = append(pending, displaced{w: w, old: old})
		}
		m.waitForAck()
		for _, d := range pending {
			d.w.RetireOld(d.old)
			for _, h := range d.old {
				m.recordStop(h)
			}
		}
		return nil
	}

	for _, w := range targets {
		if !w.Restartable() {
			slog.Warn("skipping restart of non-restartable worker", "ident", w.Ident())
			continue
		}
		old := w.Handles()
		if err := w.Restart(worker.ShutdownFirst); err != nil {
			return err
		}
		for _, h := range old {
			m.recordStop(h)
		}
		for _, h := range w.Handles() {
			m.recordStart(h)
		}
		metrics.IncRestart(w.Ident())
	}
	return nil
}

// resolveTargets maps restart idents to workers under the registry mutex.
// nil idents addresses every registered group.
func (m *Manager) resolveTargets(idents []string) ([]*worker.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idents == nil {
		return append(m.transient.All(), m.durable.All()...), nil
	}
	var targets []*worker.Worker
	for _, ident := range idents {
		w, ok := m.transient.Get(ident)
		if !ok {
			w, ok = m.durable.Get(ident)
		}
		if !ok {
			return nil, fmt.Errorf("worker %s: %w", ident, ErrUnknownWorker)
		}
		targets = append(targets, w)
	}
	return targets, nil
}

// Ack signals readiness of the replacement processes during a
// startup-first restart. At most one pending ack is retained.
func (m *Manager) Ack() {
	select {
	case m.ackCh <- struct{}{}:
	default:
	}
}

// waitForAck blocks until Ack when the manager was built WithAck; without
// it the zero-downtime window closes immediately. No timeout is enforced
// here, bounding the wait is the signal-escalation path's job.
func (m *Manager) waitForAck() {
	if !m.requireAck {
		return
	}
	<-m.ackCh
}

// Monitor blocks reading restart directives from the control channel until
// the empty sentinel message or channel closure. Restart errors are logged
// and the loop keeps going; one bad directive must not stop supervision.
func (m *Manager) Monitor() {
	for {
		raw, err := m.sub.Recv()
		if err != nil {
			slog.Debug("monitor loop ending", "reason", err)
			return
		}
		msg, ok := control.Parse(raw)
		if !ok {
			slog.Debug("monitor loop ending", "reason", "sentinel")
			return
		}
		if err := m.Restart(msg.Idents, msg.ReloadedFiles, msg.Order); err != nil {
			slog.Error("restart directive failed", "error", err)
		}
	}
}

// Terminate sends a graceful stop to every managed process. It does not
// change the shutdown state.
func (m *Manager) Terminate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range append(m.transient.All(), m.durable.All()...) {
		w.StopAll()
	}
}

// Shutdown gracefully stops the subset of managed processes that are still
// alive. Already-dead processes are skipped.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range append(m.transient.All(), m.durable.All()...) {
		for _, h := range w.Handles() {
			if !h.IsAlive() {
				continue
			}
			if err := h.Terminate(); err != nil {
				slog.Error("failed to stop process", "name", h.Name(), "error", err)
			}
			metrics.IncStop(h.Name())
		}
	}
}

// ShutdownServer stops a single durable group by ident, or the first
// durable group with a live process when ident is empty. An empty ident
// with nothing to stop is a logged no-op; a named ident that does not
// exist is a lookup error.
func (m *Manager) ShutdownServer(ident string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ident != "" {
		w, ok := m.durable.Get(ident)
		if !ok {
			return fmt.Errorf("worker %s: %w", ident, ErrUnknownWorker)
		}
		m.stopWorker(w)
		return nil
	}
	for _, w := range m.durable.All() {
		if w.HasAliveProcesses() {
			m.stopWorker(w)
			return nil
		}
	}
	slog.Error("server shutdown failed because a server was not found")
	return nil
}

// ShutdownSignal is the interrupt-signal entry point. The first delivery
// requests a graceful shutdown and notifies the control channel; a second
// delivery escalates to Kill and returns ErrServerKilled.
func (m *Manager) ShutdownSignal() error {
	if m.State() >= ShutdownRequested {
		slog.Info("shutdown interrupted, killing workers")
		return m.Kill()
	}
	m.advance(ShutdownRequested)
	slog.Info("received signal, shutting down")
	if m.pub != nil {
		// The empty message doubles as the monitor-loop sentinel.
		if err := m.pub.Send(""); err != nil {
			slog.Debug("shutdown notification not delivered", "error", err)
		}
	}
	m.Shutdown()
	return nil
}

// Kill delivers a non-ignorable kill signal to the OS process group of
// every remaining process, then returns ErrServerKilled. The caller is
// expected to let that error terminate the parent.
func (m *Manager) Kill() error {
	m.advance(KillRequested)
	m.mu.Lock()
	workers := append(m.transient.All(), m.durable.All()...)
	m.mu.Unlock()
	for _, w := range workers {
		for _, h := range w.Handles() {
			if err := h.KillGroup(); err != nil {
				slog.Error("failed to kill process group", "name", h.Name(), "error", err)
			}
			metrics.IncKill()
		}
	}
	// A restart parked on its ack is supervising dead processes now;
	// release it so retirement can reap them.
	m.Ack()
	return ErrServerKilled
}

// State returns the current shutdown state.
func (m *Manager) State() State {
	return State(m.shutdown.Load())
}

// advance moves the shutdown state forward; it never moves it back.
func (m *Manager) advance(to State) {
	for {
		cur := m.shutdown.Load()
		if cur >= int32(to) {
			return
		}
		if m.shutdown.CompareAndSwap(cur, int32(to)) {
			metrics.SetShutdownState(to.String())
			return
		}
	}
}

// Transient returns the transient worker groups in ident order.
func (m *Manager) Transient() []*worker.Worker { return m.transient.All() }

// Durable returns the durable worker groups in ident order.
func (m *Manager) Durable() []*worker.Worker { return m.durable.All() }

// TransientProcesses flattens the handles of every transient group.
func (m *Manager) TransientProcesses() []*process.Handle {
	var out []*process.Handle
	for _, w := range m.transient.All() {
		out = append(out, w.Handles()...)
	}
	return out
}

// Table exposes the shared process-state table for read-only observers.
func (m *Manager) Table() *state.Table { return m.table }

func (m *Manager) recordStart(h *process.Handle) {
	metrics.IncStart(h.Name())
	st, sinks := m.persistence()
	snap := h.Snapshot()
	rec := store.Record{Name: snap.Name, PID: snap.PID, StartedAt: snap.StartedAt, Running: true}
	if st != nil {
		_ = st.RecordStart(context.Background(), rec)
	}
	for _, s := range sinks {
		_ = s.Send(context.Background(), history.Event{Type: history.EventStart, OccurredAt: time.Now().UTC(), Record: rec})
	}
}

func (m *Manager) recordStop(h *process.Handle) {
	metrics.IncStop(h.Name())
	st, sinks := m.persistence()
	snap := h.Snapshot()
	if st != nil {
		_ = st.RecordStop(context.Background(), store.UniqueKey(snap.PID, snap.StartedAt), snap.StoppedAt, snap.ExitErr)
	}
	if len(sinks) > 0 {
		rec := store.Record{Name: snap.Name, PID: snap.PID, StartedAt: snap.StartedAt}
		if !snap.StoppedAt.IsZero() {
			rec.StoppedAt = sql.NullTime{Time: snap.StoppedAt, Valid: true}
		}
		if snap.ExitErr != nil {
			rec.ExitErr = sql.NullString{String: snap.ExitErr.Error(), Valid: true}
		}
		for _, s := range sinks {
			_ = s.Send(context.Background(), history.Event{Type: history.EventStop, OccurredAt: time.Now().UTC(), Record: rec})
		}
	}
}

func (m *Manager) persistence() (store.Store, []history.Sink) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	return m.st, append([]history.Sink(nil), m.histSinks...)
}

// fleetIdentsDescending filters the server-fleet groups out of idents and
// orders them highest numeric index first, the order Scale retires them in.
func fleetIdentsDescending(idents []string) []string {
	type fleetIdent struct {
		ident string
		idx   int
	}
	var fleet []fleetIdent
	for _, ident := range idents {
		if idx, ok := fleetIndex(ident); ok {
			fleet = append(fleet, fleetIdent{ident: ident, idx: idx})
		}
	}
	sort.Slice(fleet, func(i, j int) bool { return fleet[i].idx > fleet[j].idx })
	out := make([]string, len(fleet))
	for i, f := range fleet {
		out[i] = f.ident
	}
	return out
}

// fleetIndex parses the numeric suffix of a fleet ident ("Server-12" -> 12).
func fleetIndex(ident string) (int, bool) {
	rest, ok := strings.CutPrefix(ident, ServerLabel+"-")
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(rest)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

func splitKV(kv string) (string, string, bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			if i == 0 {
				return "", "", false
			}
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}
