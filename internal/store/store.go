package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Record is one persisted row of worker-process state.
type Record struct {
	ID        int64
	Name      string
	PID       int
	StartedAt time.Time
	StoppedAt sql.NullTime
	Running   bool
	ExitErr   sql.NullString
	Uniq      string
	UpdatedAt time.Time
}

// Key returns the unique identity of this record's process incarnation.
func (r Record) Key() string { return UniqueKey(r.PID, r.StartedAt) }

// UniqueKey identifies one process incarnation. PID alone is not unique
// over time; pairing it with the start timestamp is.
func UniqueKey(pid int, startedAt time.Time) string {
	return fmt.Sprintf("%d-%d", pid, startedAt.UTC().UnixNano())
}

// Store persists worker-process lifecycle state so that observers can
// query it after the fact. Implementations must be safe for concurrent
// use.
type Store interface {
	EnsureSchema(ctx context.Context) error
	RecordStart(ctx context.Context, rec Record) error
	RecordStop(ctx context.Context, uniq string, stoppedAt time.Time, exitErr error) error
	UpsertStatus(ctx context.Context, rec Record) error
	GetByName(ctx context.Context, name string, limit int) ([]Record, error)
	GetRunning(ctx context.Context, namePrefix string) ([]Record, error)
	PurgeOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
	Close() error
}
