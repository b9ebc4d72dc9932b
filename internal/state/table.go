package state

import (
	"sort"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Entry is the externally observable record of one live named process.
type Entry struct {
	Name       string    `json:"name"`
	Ident      string    `json:"ident"` // owning worker group
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	Generation int       `json:"generation"` // respawn count for this replica slot
}

// Table is the shared registry of live named processes, keyed by full
// process name. Workers are the exclusive writers for their own entries;
// anything else (inspector API, host application, tests) only reads.
// It is explicitly constructed and injected, never ambient.
type Table struct {
	m cmap.ConcurrentMap[string, Entry]
}

func NewTable() *Table {
	return &Table{m: cmap.New[Entry]()}
}

func (t *Table) Put(e Entry) { t.m.Set(e.Name, e) }

func (t *Table) Get(name string) (Entry, bool) { return t.m.Get(name) }

func (t *Table) Has(name string) bool { return t.m.Has(name) }

func (t *Table) Delete(name string) { t.m.Remove(name) }

func (t *Table) Len() int { return t.m.Count() }

// Names returns all registered process names, sorted for determinism.
func (t *Table) Names() []string {
	names := t.m.Keys()
	sort.Strings(names)
	return names
}

// Snapshot returns a point-in-time copy of all entries.
func (t *Table) Snapshot() map[string]Entry {
	return t.m.Items()
}
