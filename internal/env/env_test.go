package env

import (
	"strings"
	"testing"
)

func lookup(out []string, key string) (string, bool) {
	for _, kv := range out {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

func TestMergePrecedence(t *testing.T) {
	e := New()
	e.base = Var{"FROM_OS": "os", "SHARED": "os"}
	e.Set("SHARED", "global")
	e.Set("GLOBAL_ONLY", "g")

	out := e.Merge([]string{"SHARED=proc", "PROC_ONLY=p"})
	for key, want := range map[string]string{
		"FROM_OS":     "os",
		"SHARED":      "proc",
		"GLOBAL_ONLY": "g",
		"PROC_ONLY":   "p",
	} {
		got, ok := lookup(out, key)
		if !ok || got != want {
			t.Fatalf("%s = %q ok=%v, want %q", key, got, ok, want)
		}
	}
}

func TestMergeExpansion(t *testing.T) {
	e := New()
	e.base = Var{"HOME_DIR": "/home/app"}
	out := e.Merge([]string{"DATA=${HOME_DIR}/data"})
	got, ok := lookup(out, "DATA")
	if !ok || got != "/home/app/data" {
		t.Fatalf("DATA = %q ok=%v", got, ok)
	}
}

func TestMergeSkipsMalformed(t *testing.T) {
	e := New()
	e.base = Var{}
	out := e.Merge([]string{"=nokey", "novalue", "OK=1"})
	if _, ok := lookup(out, "OK"); !ok {
		t.Fatalf("valid pair dropped: %v", out)
	}
	for _, kv := range out {
		if strings.HasPrefix(kv, "=") || !strings.Contains(kv, "=") {
			t.Fatalf("malformed entry leaked: %q", kv)
		}
	}
}

func TestUnset(t *testing.T) {
	e := New()
	e.base = Var{}
	e.Set("KEY", "v")
	e.Unset("KEY")
	if _, ok := lookup(e.Merge(nil), "KEY"); ok {
		t.Fatalf("unset key still present")
	}
}
