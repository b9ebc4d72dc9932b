package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/warden/internal/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "warden.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return d
}

func TestRecordStartAndGetRunning(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute)

	rec := store.Record{Name: "Warden-Server-0-0", PID: 1234, StartedAt: started}
	if err := d.RecordStart(ctx, rec); err != nil {
		t.Fatalf("record start: %v", err)
	}
	// Same incarnation recorded twice must not duplicate.
	if err := d.RecordStart(ctx, rec); err != nil {
		t.Fatalf("record start again: %v", err)
	}

	got, err := d.GetRunning(ctx, "Warden-Server")
	if err != nil {
		t.Fatalf("get running: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("running rows = %d, want 1", len(got))
	}
	r := got[0]
	if r.Name != "Warden-Server-0-0" || r.PID != 1234 || !r.Running {
		t.Fatalf("record = %+v", r)
	}
	if r.Uniq != store.UniqueKey(1234, started) {
		t.Fatalf("uniq = %q", r.Uniq)
	}
}

func TestRecordStopMarksNotRunning(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute)

	rec := store.Record{Name: "Warden-Server-0-0", PID: 42, StartedAt: started}
	if err := d.RecordStart(ctx, rec); err != nil {
		t.Fatalf("record start: %v", err)
	}
	stopped := time.Now()
	if err := d.RecordStop(ctx, rec.Key(), stopped, errors.New("exit status 1")); err != nil {
		t.Fatalf("record stop: %v", err)
	}

	running, err := d.GetRunning(ctx, "Warden")
	if err != nil {
		t.Fatalf("get running: %v", err)
	}
	if len(running) != 0 {
		t.Fatalf("stopped row still reported running: %+v", running)
	}

	hist, err := d.GetByName(ctx, "Warden-Server-0-0", 10)
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history rows = %d, want 1", len(hist))
	}
	r := hist[0]
	if r.Running {
		t.Fatalf("row still running after stop")
	}
	if !r.StoppedAt.Valid {
		t.Fatalf("stopped_at not set")
	}
	if !r.ExitErr.Valid || r.ExitErr.String != "exit status 1" {
		t.Fatalf("exit_err = %+v", r.ExitErr)
	}
}

func TestGetByNameOrdersNewestFirst(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		rec := store.Record{Name: "Warden-Pool-0", PID: 100 + i, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := d.RecordStart(ctx, rec); err != nil {
			t.Fatalf("record start %d: %v", i, err)
		}
	}
	got, err := d.GetByName(ctx, "Warden-Pool-0", 2)
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2 (limit)", len(got))
	}
	if got[0].PID != 102 || got[1].PID != 101 {
		t.Fatalf("order wrong: %d, %d", got[0].PID, got[1].PID)
	}
}

func TestUpsertStatus(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute)
	rec := store.Record{Name: "Warden-Server-0-0", PID: 7, StartedAt: started, Running: true}
	if err := d.UpsertStatus(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec.Running = false
	rec.StoppedAt.Valid = true
	rec.StoppedAt.Time = time.Now()
	if err := d.UpsertStatus(ctx, rec); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	got, err := d.GetByName(ctx, "Warden-Server-0-0", 10)
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("rows = %d, want 1", len(got))
	}
	if got[0].Running || !got[0].StoppedAt.Valid {
		t.Fatalf("upsert did not replace: %+v", got[0])
	}
}

func TestPurgeOlderThan(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Hour)

	old := store.Record{Name: "Warden-Server-0-0", PID: 1, StartedAt: started}
	if err := d.RecordStart(ctx, old); err != nil {
		t.Fatalf("record start: %v", err)
	}
	if err := d.RecordStop(ctx, old.Key(), started.Add(time.Minute), nil); err != nil {
		t.Fatalf("record stop: %v", err)
	}
	live := store.Record{Name: "Warden-Server-1-0", PID: 2, StartedAt: started}
	if err := d.RecordStart(ctx, live); err != nil {
		t.Fatalf("record start: %v", err)
	}

	n, err := d.PurgeOlderThan(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged = %d, want 1 (running rows stay)", n)
	}
	running, err := d.GetRunning(ctx, "Warden")
	if err != nil {
		t.Fatalf("get running: %v", err)
	}
	if len(running) != 1 || running[0].PID != 2 {
		t.Fatalf("running after purge = %+v", running)
	}
}
