package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"fortio.org/safecast"
	_ "modernc.org/sqlite"
)

// duckdbAvailable is set when the duckdb driver is linked in.
var duckdbAvailable bool

const createEventsTable = `CREATE TABLE IF NOT EXISTS uatu_events (
	run     TEXT    NOT NULL,
	idx     BIGINT  NOT NULL,
	ts      BIGINT  NOT NULL,
	kind    TEXT    NOT NULL,
	subject TEXT    NOT NULL,
	payload BLOB    NOT NULL,
	PRIMARY KEY (run, idx)
)`

// SQLStore writes events to a SQL table. Each row carries the plain columns
// for ad-hoc queries plus the CBOR-encoded entry.
type SQLStore struct {
	db     *sql.DB
	driver string
	path   string
	runID  string
	mu     sync.Mutex
}

// OpenSQL opens (and creates if needed) an event database. driver is
// "sqlite" or "duckdb".
func OpenSQL(ctx context.Context, driver, path string, opts ...Option) (*SQLStore, error) {
	o := buildOptions(opts)

	switch driver {
	case "sqlite":
	case "duckdb":
		if !duckdbAvailable {
			return nil, fmt.Errorf("duckdb backend requires a cgo build")
		}
	default:
		return nil, fmt.Errorf("%w: sql driver %q", ErrUnknownBackend, driver)
	}
	if path == "" {
		return nil, fmt.Errorf("%s store: no database path configured", driver)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if driver == "sqlite" {
		// Set busy timeout for concurrent access
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting busy timeout: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, createEventsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	if o.clearOnOpen {
		if _, err := db.ExecContext(ctx, "DELETE FROM uatu_events"); err != nil {
			db.Close()
			return nil, fmt.Errorf("clearing events: %w", err)
		}
		log.Infof("cleared %s event table at %s", driver, path)
	}

	log.Debugf("opened %s store %s (run %s)", driver, path, o.runID)
	return &SQLStore{db: db, driver: driver, path: path, runID: o.runID}, nil
}

// Put inserts one event row.
func (s *SQLStore) Put(ctx context.Context, index uint64, e Entry) error {
	idx, err := safecast.Conv[int64](index)
	if err != nil {
		return fmt.Errorf("event index %d: %w", index, err)
	}
	payload, err := MarshalEntry(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO uatu_events (run, idx, ts, kind, subject, payload) VALUES (?, ?, ?, ?, ?, ?)",
		s.runID, idx, e.Timestamp, e.Kind, e.Subject, payload,
	)
	if err != nil {
		return fmt.Errorf("saving event %d: %w", index, err)
	}
	return nil
}

// Records reads back this run's events in index order.
func (s *SQLStore) Records(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT idx, payload FROM uatu_events WHERE run = ? ORDER BY idx", s.runID)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var idx int64
		var payload []byte
		if err := rows.Scan(&idx, &payload); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e, err := UnmarshalEntry(payload)
		if err != nil {
			return nil, err
		}
		index, err := safecast.Conv[uint64](idx)
		if err != nil {
			return nil, fmt.Errorf("event index %d: %w", idx, err)
		}
		out = append(out, Record{Index: index, Entry: e})
	}
	return out, rows.Err()
}

// Runs lists the run IDs present in the database.
func (s *SQLStore) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT run FROM uatu_events ORDER BY run")
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var run string
		if err := rows.Scan(&run); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLStore) RunID() string {
	return s.runID
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
