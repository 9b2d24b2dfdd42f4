// Package outcome persists per-request resolution records in SQLite.
// It uses modernc.org/sqlite for pure-Go, CGO-free database access.
// Only derived measurements are stored; input text never reaches disk.
package outcome

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed schema.sql
var schema string

// Record is one resolved request's stored outcome.
type Record struct {
	RequestID  string
	CreatedAt  time.Time
	Score      float64
	Entropy    float64
	Units      int
	Band       string
	Path       string
	Verdict    string
	Degraded   bool
	DurationMs int64
	Backends   []BackendRecord
}

// BackendRecord is one backend invocation within a request.
type BackendRecord struct {
	Backend     string
	Succeeded   bool
	FailureKind string
	LatencyMs   int64
}

// Store provides access to the outcome database.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the outcome database at dbPath and initializes
// the schema. Idempotent across restarts.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db}

	if err := store.initPragmas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize pragmas: %w", err)
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// initPragmas configures SQLite for safety and performance.
func (s *Store) initPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for concurrent reads
		"PRAGMA synchronous = NORMAL", // Balance safety and performance
		"PRAGMA foreign_keys = ON",    // Enforce referential integrity
		"PRAGMA busy_timeout = 5000",  // Wait 5 seconds if locked
		"PRAGMA temp_store = MEMORY",  // Keep temp tables in memory
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

// migrate applies the embedded schema. Safe to call multiple times.
func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w\nSQL: %s", err, stmt)
		}
	}

	return tx.Commit()
}

// Save persists one request outcome and its backend records atomically.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outcomes (request_id, created_at, score, entropy, units, band, path, verdict, degraded, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.CreatedAt.Format(time.RFC3339Nano), rec.Score, rec.Entropy,
		rec.Units, rec.Band, rec.Path, rec.Verdict, boolToInt(rec.Degraded), rec.DurationMs)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}

	for _, b := range rec.Backends {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO backend_outcomes (request_id, backend, succeeded, failure_kind, latency_ms)
			VALUES (?, ?, ?, ?, ?)`,
			rec.RequestID, b.Backend, boolToInt(b.Succeeded), b.FailureKind, b.LatencyMs)
		if err != nil {
			return fmt.Errorf("insert backend outcome: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outcome: %w", err)
	}
	return nil
}

// Recent returns the most recent outcomes, newest first, without their
// backend records.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, created_at, score, entropy, units, band, path, verdict, degraded, duration_ms
		FROM outcomes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var createdAt string
		var degraded int
		if err := rows.Scan(&rec.RequestID, &createdAt, &rec.Score, &rec.Entropy,
			&rec.Units, &rec.Band, &rec.Path, &rec.Verdict, &degraded, &rec.DurationMs); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		rec.Degraded = degraded != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns one outcome by request ID, including backend records.
func (s *Store) Get(ctx context.Context, requestID string) (*Record, error) {
	var rec Record
	var createdAt string
	var degraded int
	err := s.db.QueryRowContext(ctx, `
		SELECT request_id, created_at, score, entropy, units, band, path, verdict, degraded, duration_ms
		FROM outcomes WHERE request_id = ? ORDER BY id DESC LIMIT 1`, requestID).
		Scan(&rec.RequestID, &createdAt, &rec.Score, &rec.Entropy,
			&rec.Units, &rec.Band, &rec.Path, &rec.Verdict, &degraded, &rec.DurationMs)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("outcome %s not found", requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("query outcome: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.Degraded = degraded != 0

	rows, err := s.db.QueryContext(ctx, `
		SELECT backend, succeeded, failure_kind, latency_ms
		FROM backend_outcomes WHERE request_id = ? ORDER BY backend`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query backend outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b BackendRecord
		var succeeded int
		if err := rows.Scan(&b.Backend, &succeeded, &b.FailureKind, &b.LatencyMs); err != nil {
			return nil, fmt.Errorf("scan backend outcome: %w", err)
		}
		b.Succeeded = succeeded != 0
		rec.Backends = append(rec.Backends, b)
	}
	return &rec, rows.Err()
}

// PathCounts returns how many outcomes took each execution path.
func (s *Store) PathCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, COUNT(*) FROM outcomes GROUP BY path`)
	if err != nil {
		return nil, fmt.Errorf("query path counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var path string
		var count int
		if err := rows.Scan(&path, &count); err != nil {
			return nil, fmt.Errorf("scan path count: %w", err)
		}
		counts[path] = count
	}
	return counts, rows.Err()
}

// Health checks that the database is alive and responsive.
func (s *Store) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close flushes the WAL and closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: WAL checkpoint failed: %v\n", err)
	}
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
