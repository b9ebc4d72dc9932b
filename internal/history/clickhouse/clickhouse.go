package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/cenkalti/backoff/v4"

	"github.com/loykin/warden/internal/history"
)

// Sink sends worker lifecycle events to ClickHouse using the official Go
// client. Inserts are retried with exponential backoff; ClickHouse being
// briefly unreachable must not surface into the supervision path.
type Sink struct {
	conn  driver.Conn
	table string
}

type Config struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

func New(cfg Config) (*Sink, error) {
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	if cfg.Table == "" {
		cfg.Table = "worker_history"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return &Sink{conn: conn, table: cfg.Table}, nil
}

// EnsureTable creates the history table if it does not exist.
func (s *Sink) EnsureTable(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		type String,
		occurred_at DateTime64(3),
		name String,
		pid Int64,
		started_at DateTime64(3),
		stopped_at Nullable(DateTime64(3)),
		exit_err Nullable(String),
		uniq String
	) ENGINE = MergeTree() ORDER BY (name, occurred_at)`, s.table)
	return s.conn.Exec(ctx, q)
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (type, occurred_at, name, pid, started_at, stopped_at, exit_err, uniq) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	var stoppedAt *time.Time
	if e.Record.StoppedAt.Valid {
		t := e.Record.StoppedAt.Time
		stoppedAt = &t
	}
	var exitErr *string
	if e.Record.ExitErr.Valid {
		v := e.Record.ExitErr.String
		exitErr = &v
	}

	insert := func() error {
		return s.conn.Exec(ctx, query,
			string(e.Type),
			e.OccurredAt,
			e.Record.Name,
			int64(e.Record.PID),
			e.Record.StartedAt,
			stoppedAt,
			exitErr,
			e.Record.Key(),
		)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(insert, bo); err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}
