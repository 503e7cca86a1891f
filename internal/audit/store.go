// Package audit persists every validated event and every emitted metric,
// together with the event→metric lineage, in a single-writer SQLite
// database. A best-effort JSON-Lines side log feeds the replay reader.
package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xshift007/lab3-distri/internal/domain"
	"github.com/xshift007/lab3-distri/internal/metrics"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS events_in (
  event_id TEXT PRIMARY KEY,
  timestamp TEXT NOT NULL,
  region TEXT NOT NULL,
  source TEXT NOT NULL,
  schema_version TEXT,
  correlation_id TEXT,
  payload_json TEXT NOT NULL,
  run_id TEXT DEFAULT 'default',
  inserted_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS metrics_out (
  metric_id TEXT PRIMARY KEY,
  date TEXT NOT NULL,
  region TEXT NOT NULL,
  run_id TEXT DEFAULT 'default',
  metrics_json TEXT NOT NULL,
  created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS trace (
  event_id TEXT NOT NULL,
  metric_id TEXT NOT NULL,
  contribution_type TEXT DEFAULT 'window_member',
  PRIMARY KEY (event_id, metric_id),
  FOREIGN KEY (event_id) REFERENCES events_in(event_id),
  FOREIGN KEY (metric_id) REFERENCES metrics_out(metric_id)
);
`

// StoredEvent is one row of events_in.
type StoredEvent struct {
	EventID       string
	Timestamp     string
	Region        string
	Source        string
	SchemaVersion string
	CorrelationID string
	PayloadJSON   string
	RunID         string
}

// Store owns the audit database. Single writer per process; WAL mode keeps
// the file readable by external tooling while the pipeline runs.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the audit database with the pipeline's
// pragma set: WAL journal, NORMAL sync, foreign keys on, 5s busy timeout.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// The store is the sole writer; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle. Used by tests.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertEvent stores one validated event in a single transaction. Re-sent
// events are ignored: event_id is the idempotency key.
func (s *Store) InsertEvent(ctx context.Context, ev StoredEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorage("begin event tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO events_in
		(event_id, timestamp, region, source, schema_version, correlation_id, payload_json, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.Timestamp, ev.Region, ev.Source,
		ev.SchemaVersion, ev.CorrelationID, ev.PayloadJSON, ev.RunID,
	)
	if err != nil {
		return domain.NewStorage("insert event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.NewStorage("commit event", err)
	}
	metrics.RecordRowStored("events_in")
	return nil
}

// InsertMetric stores one metric and its lineage rows in a single
// transaction. The metric row uses REPLACE semantics so a resend overwrites;
// trace rows are idempotent. If any referenced event is not yet in
// events_in, the foreign key rejects the trace insert and the whole
// transaction rolls back — the caller requeues and retries once the event
// writer has caught up.
func (s *Store) InsertMetric(ctx context.Context, m domain.Metric, metricsJSON string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorage("begin metric tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO metrics_out(metric_id, date, region, run_id, metrics_json)
		VALUES (?, ?, ?, ?, ?)`,
		m.MetricID, m.Date, m.Region, m.RunID, metricsJSON,
	)
	if err != nil {
		return domain.NewStorage("insert metric", err)
	}

	for _, eventID := range m.InputEventIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO trace(event_id, metric_id, contribution_type)
			VALUES (?, ?, 'window_member')`,
			eventID, m.MetricID,
		)
		if err != nil {
			return domain.NewStorage(fmt.Sprintf("insert trace for event %s", eventID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.NewStorage("commit metric", err)
	}
	metrics.RecordRowStored("metrics_out")
	return nil
}
