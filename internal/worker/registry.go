package worker

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds worker groups keyed by ident. The manager keeps two:
// one for transient groups (the server fleet) and one for durable groups.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*Worker
}

func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]*Worker)}
}

// Put registers a worker. Idents are unique per registry.
func (r *Registry) Put(w *Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workers[w.Ident()]; ok {
		return fmt.Errorf("worker %s already exists", w.Ident())
	}
	r.workers[w.Ident()] = w
	return nil
}

func (r *Registry) Get(ident string) (*Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[ident]
	return w, ok
}

func (r *Registry) Delete(ident string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, ident)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// Idents returns the registered idents, sorted.
func (r *Registry) Idents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idents := make([]string, 0, len(r.workers))
	for ident := range r.workers {
		idents = append(idents, ident)
	}
	sort.Strings(idents)
	return idents
}

// All returns the registered workers in ident order.
func (r *Registry) All() []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idents := make([]string, 0, len(r.workers))
	for ident := range r.workers {
		idents = append(idents, ident)
	}
	sort.Strings(idents)
	out := make([]*Worker, 0, len(idents))
	for _, ident := range idents {
		out = append(out, r.workers[ident])
	}
	return out
}
