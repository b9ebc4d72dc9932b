package control

import (
	"testing"

	"github.com/loykin/warden/internal/worker"
)

func TestParseAllScope(t *testing.T) {
	m, ok := Parse(AllProcesses + ":foo,bar")
	if !ok {
		t.Fatalf("expected message, got sentinel")
	}
	if m.Idents != nil {
		t.Fatalf("expected nil idents for all scope, got %v", m.Idents)
	}
	if m.ReloadedFiles != "foo,bar" {
		t.Fatalf("reloaded files = %q", m.ReloadedFiles)
	}
	if m.Order != worker.ShutdownFirst {
		t.Fatalf("order = %v", m.Order)
	}
}

func TestParseStartupFirst(t *testing.T) {
	m, ok := Parse(AllProcesses + ":foo,bar:STARTUP_FIRST")
	if !ok {
		t.Fatalf("expected message, got sentinel")
	}
	if m.Idents != nil {
		t.Fatalf("expected nil idents, got %v", m.Idents)
	}
	if m.ReloadedFiles != "foo,bar" {
		t.Fatalf("reloaded files = %q", m.ReloadedFiles)
	}
	if m.Order != worker.StartupFirst {
		t.Fatalf("order = %v", m.Order)
	}
}

func TestParseNamedScope(t *testing.T) {
	m, ok := Parse("Worker-X:foo,bar")
	if !ok {
		t.Fatalf("expected message, got sentinel")
	}
	if len(m.Idents) != 1 || m.Idents[0] != "Worker-X" {
		t.Fatalf("idents = %v", m.Idents)
	}
	if m.ReloadedFiles != "foo,bar" {
		t.Fatalf("reloaded files = %q", m.ReloadedFiles)
	}
	if m.Order != worker.ShutdownFirst {
		t.Fatalf("order = %v", m.Order)
	}
}

func TestParseScopeOnly(t *testing.T) {
	m, ok := Parse("Cache")
	if !ok {
		t.Fatalf("expected message, got sentinel")
	}
	if len(m.Idents) != 1 || m.Idents[0] != "Cache" {
		t.Fatalf("idents = %v", m.Idents)
	}
	if m.ReloadedFiles != "" || m.Order != worker.ShutdownFirst {
		t.Fatalf("unexpected defaults: %+v", m)
	}
}

func TestParseEmptySentinel(t *testing.T) {
	if _, ok := Parse(""); ok {
		t.Fatalf("empty message must be the sentinel")
	}
}

func TestParseUnknownOrderToken(t *testing.T) {
	m, _ := Parse("Worker-X:files:WHATEVER")
	if m.Order != worker.ShutdownFirst {
		t.Fatalf("unknown order token must default to shutdown-first")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	cases := []Message{
		{},
		{ReloadedFiles: "a.py,b.py"},
		{Idents: []string{"Worker-X"}},
		{Idents: []string{"Worker-X"}, ReloadedFiles: "x", Order: worker.StartupFirst},
		{ReloadedFiles: "", Order: worker.StartupFirst},
	}
	for _, want := range cases {
		got, ok := Parse(want.Encode())
		if !ok {
			t.Fatalf("round trip of %+v hit sentinel", want)
		}
		if got.ReloadedFiles != want.ReloadedFiles || got.Order != want.Order {
			t.Fatalf("round trip mismatch: want %+v got %+v", want, got)
		}
		if len(got.Idents) != len(want.Idents) {
			t.Fatalf("round trip idents mismatch: want %v got %v", want.Idents, got.Idents)
		}
	}
}
