package worker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/warden/internal/process"
	"github.com/loykin/warden/internal/state"
)

// DefaultTag prefixes every process name managed by a supervisor.
const DefaultTag = "Warden"

// Config captures everything needed to (re)spawn a worker group.
type Config struct {
	Ident       string
	Tag         string // supervisor tag; DefaultTag when empty
	Spec        process.Spec
	Num         int // replica count, >= 1
	Restartable bool
	Tracked     bool
	AutoStart   bool
	Transient   bool
}

// Worker is a named group of replica processes sharing one spec. Replica
// process names are <tag>-<ident>-<idx> and stay stable across restarts;
// the respawn generation is tracked separately and surfaced through the
// state table.
type Worker struct {
	mu         sync.Mutex
	cfg        Config
	handles    []*process.Handle
	table      *state.Table
	generation int
}

// New validates the config and builds a Worker. No process is spawned yet.
func New(cfg Config, table *state.Table) (*Worker, error) {
	if cfg.Ident == "" {
		return nil, fmt.Errorf("worker requires an ident")
	}
	if cfg.Num < 1 {
		return nil, fmt.Errorf("worker %s requires at least one process", cfg.Ident)
	}
	if cfg.Transient && !cfg.Restartable {
		return nil, fmt.Errorf("cannot create a transient worker that is not restartable")
	}
	if cfg.Tag == "" {
		cfg.Tag = DefaultTag
	}
	if table == nil {
		table = state.NewTable()
	}
	return &Worker{cfg: cfg, table: table}, nil
}

func (w *Worker) Ident() string     { return w.cfg.Ident }
func (w *Worker) Num() int          { return w.cfg.Num }
func (w *Worker) Restartable() bool { return w.cfg.Restartable }
func (w *Worker) Tracked() bool     { return w.cfg.Tracked }
func (w *Worker) AutoStart() bool   { return w.cfg.AutoStart }
func (w *Worker) Transient() bool   { return w.cfg.Transient }
func (w *Worker) Spec() process.Spec {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg.Spec
}

// ProcessName returns the full name of replica slot idx.
func (w *Worker) ProcessName(idx int) string {
	return fmt.Sprintf("%s-%s-%d", w.cfg.Tag, w.cfg.Ident, idx)
}

// ProcessNames lists the full names of all replica slots.
func (w *Worker) ProcessNames() []string {
	names := make([]string, w.cfg.Num)
	for i := range names {
		names[i] = w.ProcessName(i)
	}
	return names
}

// Handles returns a copy of the current handle slice, index-ordered.
func (w *Worker) Handles() []*process.Handle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*process.Handle(nil), w.handles...)
}

// StartAll spawns one process per replica slot and registers each in the
// state table. Slots already holding a live handle are an error; StartAll
// is only valid on a fresh or fully-retired group.
func (w *Worker) StartAll() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.handles) > 0 {
		return fmt.Errorf("worker %s already has processes", w.cfg.Ident)
	}
	handles, err := w.spawnLocked()
	if err != nil {
		return err
	}
	w.handles = handles
	return nil
}

// spawnLocked starts one new handle per slot under the current generation.
// Callers hold w.mu.
func (w *Worker) spawnLocked() ([]*process.Handle, error) {
	handles := make([]*process.Handle, 0, w.cfg.Num)
	for i := 0; i < w.cfg.Num; i++ {
		spec := w.cfg.Spec
		spec.Name = w.ProcessName(i)
		h := process.NewHandle(spec)
		if err := h.Start(); err != nil {
			return handles, err
		}
		w.table.Put(state.Entry{
			Name:       h.Name(),
			Ident:      w.cfg.Ident,
			PID:        h.PID(),
			StartedAt:  time.Now(),
			Generation: w.generation,
		})
		slog.Debug("started worker process", "name", h.Name(), "pid", h.PID(), "generation", w.generation)
		handles = append(handles, h)
	}
	return handles, nil
}

// StopAll delivers a graceful stop to every handle in the group. State
// table entries stay until the processes are confirmed dead and the worker
// is removed, so observers can still resolve names of draining processes.
func (w *Worker) StopAll() {
	for _, h := range w.Handles() {
		if err := h.Terminate(); err != nil {
			slog.Error("failed to terminate worker process", "name", h.Name(), "error", err)
		}
	}
}

// HasAliveProcesses reports whether any replica is still alive; removal of
// the worker is refused while it returns true.
func (w *Worker) HasAliveProcesses() bool {
	for _, h := range w.Handles() {
		if h.IsAlive() {
			return true
		}
	}
	return false
}

// Restart respawns the whole group with the given ordering. For
// StartupFirst callers that need to interleave an ack wait between phases,
// use StartReplacements and RetireOld directly.
func (w *Worker) Restart(order RestartOrder) error {
	if order == StartupFirst {
		old, err := w.StartReplacements()
		if err != nil {
			return err
		}
		w.RetireOld(old)
		return nil
	}
	w.StopAll()
	for _, h := range w.Handles() {
		h.Join()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handles = nil
	w.generation++
	handles, err := w.spawnLocked()
	if err != nil {
		return err
	}
	w.handles = handles
	return nil
}

// StartReplacements begins a zero-downtime restart: it spawns a fresh
// handle for every slot while the old processes keep serving, and returns
// the displaced handles. The group's process count is temporarily doubled
// until RetireOld runs.
func (w *Worker) StartReplacements() ([]*process.Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	old := w.handles
	w.generation++
	handles, err := w.spawnLocked()
	if err != nil {
		// Roll the generation back so a retry does not skip a number.
		w.generation--
		for _, h := range handles {
			_ = h.Terminate()
		}
		return nil, err
	}
	w.handles = handles
	return old, nil
}

// RetireOld terminates and reaps handles displaced by StartReplacements.
func (w *Worker) RetireOld(old []*process.Handle) {
	for _, h := range old {
		if err := h.Terminate(); err != nil {
			slog.Error("failed to terminate displaced process", "name", h.Name(), "error", err)
		}
	}
	for _, h := range old {
		h.Join()
	}
}

// PurgeState deletes every state table entry owned by this worker. Only
// the removal path calls this, after all processes are confirmed dead.
func (w *Worker) PurgeState() {
	for _, name := range w.ProcessNames() {
		w.table.Delete(name)
	}
}

// Generation returns the current respawn generation.
func (w *Worker) Generation() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation
}
