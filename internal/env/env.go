package env

import (
	"os"
	"strings"
)

type Var map[string]string

// Env composes the environment handed to spawned worker processes:
// the OS environment as the base, supervisor-wide globals on top, and
// per-process overrides last.
type Env struct {
	global Var
	base   Var // cached OS environment
}

func New() *Env {
	return &Env{global: make(Var)}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			base[kv[:i]] = kv[i+1:]
		}
	}
	e.base = base
}

// Set sets a global variable K=V.
func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	if e.global == nil {
		e.global = make(Var)
	}
	e.global[k] = v
}

// Unset removes a global variable.
func (e *Env) Unset(k string) {
	delete(e.global, k)
}

// Merge composes the final environment list. Precedence, lowest first:
// cached OS base, then globals, then perProc ("K=V" entries). ${VAR}
// placeholders are expanded once against the composed map, no recursion.
func (e *Env) Merge(perProc []string) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(Var, len(e.base)+len(e.global)+len(perProc))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.global {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for _, kv := range perProc {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		m[kv[:i]] = kv[i+1:]
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	return out
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	for k, v := range m {
		s = strings.ReplaceAll(s, "${"+k+"}", v)
	}
	return s
}
