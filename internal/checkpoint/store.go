// Package checkpoint persists read cursors so interrupted reads resume after
// the last delivered event.
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Checkpoint is the last event id delivered for a named reader of a stream.
type Checkpoint struct {
	Name      string    `json:"name"`
	Namespace string    `json:"namespace"`
	Stream    string    `json:"stream"`
	LastID    string    `json:"lastId"`
	Count     int64     `json:"count"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store wraps the SQL database holding checkpoints.
type Store struct {
	db       *sql.DB
	postgres bool
}

// Open initializes the store. driver is "sqlite" (dsn is a file path) or
// "postgres" (dsn is a connection string).
func Open(dsn string, driver string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("checkpoint DSN is required")
	}
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case "", "sqlite":
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
		}
		conn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", dsn)
		db, err = sql.Open("sqlite", conn)
	case "postgres", "pgx":
		driver = "postgres"
		db, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported checkpoint driver: %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s checkpoint store: %w", driver, err)
	}
	s := &Store{db: db, postgres: driver == "postgres"}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	stmt := `CREATE TABLE IF NOT EXISTS checkpoints (
		name TEXT NOT NULL,
		namespace TEXT NOT NULL,
		stream TEXT NOT NULL,
		last_id TEXT NOT NULL,
		count BIGINT NOT NULL DEFAULT 0,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (name, namespace, stream)
	);`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("schema apply failed: %w", err)
	}
	return nil
}

// Close shuts down the store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the checkpoint for (name, namespace, stream).
func (s *Store) Get(ctx context.Context, name, namespace, stream string) (Checkpoint, bool, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT name, namespace, stream, last_id, count, updated_at FROM checkpoints
		 WHERE name = ? AND namespace = ? AND stream = ?`), name, namespace, stream)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

// Save inserts or replaces a checkpoint. Count accumulates.
func (s *Store) Save(ctx context.Context, cp Checkpoint) error {
	if cp.Name == "" || cp.Stream == "" {
		return errors.New("checkpoint name and stream are required")
	}
	if cp.LastID == "" {
		return errors.New("checkpoint last id is required")
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO checkpoints (name, namespace, stream, last_id, count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (name, namespace, stream) DO UPDATE SET
		   last_id = excluded.last_id,
		   count = checkpoints.count + excluded.count,
		   updated_at = excluded.updated_at`),
		cp.Name, cp.Namespace, cp.Stream, cp.LastID, cp.Count, cp.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.Name, err)
	}
	return nil
}

// List returns every checkpoint, optionally filtered by name.
func (s *Store) List(ctx context.Context, name string) ([]Checkpoint, error) {
	query := `SELECT name, namespace, stream, last_id, count, updated_at FROM checkpoints`
	var args []any
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY name, namespace, stream`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// Delete removes a checkpoint.
func (s *Store) Delete(ctx context.Context, name, namespace, stream string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM checkpoints WHERE name = ? AND namespace = ? AND stream = ?`),
		name, namespace, stream)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (Checkpoint, error) {
	var (
		cp      Checkpoint
		updated int64
	)
	if err := row.Scan(&cp.Name, &cp.Namespace, &cp.Stream, &cp.LastID, &cp.Count, &updated); err != nil {
		return Checkpoint{}, err
	}
	cp.UpdatedAt = time.UnixMilli(updated).UTC()
	return cp, nil
}

// rebind rewrites "?" placeholders as "$n" for postgres.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
