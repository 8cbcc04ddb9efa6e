// Package catalog keeps a SQLite index of scanned DH5 files: their layout
// counts, validation outcome and processing history.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cog-neurophys-lab/dh5io/dh5"
	"github.com/cog-neurophys-lab/dh5io/internal/catalog/migrations"
)

// ErrNotFound is returned for paths that are not in the catalog.
var ErrNotFound = errors.New("not in catalog")

// Entry is the catalog record of one DH5 file.
type Entry struct {
	Path        string          `json:"path" yaml:"path"`
	FileVersion int             `json:"file_version" yaml:"file_version"`
	Boards      []string        `json:"boards,omitempty" yaml:"boards,omitempty"`
	ContGroups  int             `json:"cont_groups" yaml:"cont_groups"`
	SpikeGroups int             `json:"spike_groups" yaml:"spike_groups"`
	Samples     int64           `json:"samples" yaml:"samples"`
	Events      int             `json:"events" yaml:"events"`
	Trials      int             `json:"trials" yaml:"trials"`
	Valid       bool            `json:"valid" yaml:"valid"`
	Error       string          `json:"error,omitempty" yaml:"error,omitempty"`
	Warnings    int             `json:"warnings" yaml:"warnings"`
	Notices     int             `json:"notices" yaml:"notices"`
	Operations  []dh5.Operation `json:"operations,omitempty" yaml:"operations,omitempty"`
	ScannedAt   time.Time       `json:"scanned_at" yaml:"scanned_at"`
}

// NewEntry builds an entry from a file summary and the outcome of its
// validation.
func NewEntry(s *dh5.Summary, report *dh5.Report, validateErr error, scannedAt time.Time) Entry {
	e := Entry{
		Path:        s.Path,
		FileVersion: s.Version,
		Boards:      s.Boards,
		ContGroups:  len(s.Cont),
		SpikeGroups: len(s.Spike),
		Events:      s.Events,
		Trials:      s.Trials,
		Valid:       validateErr == nil,
		Operations:  s.Operations,
		ScannedAt:   scannedAt.UTC(),
	}
	for _, c := range s.Cont {
		e.Samples += int64(c.Samples)
	}
	if validateErr != nil {
		e.Error = validateErr.Error()
	}
	if report != nil {
		e.Warnings = len(report.Warnings())
		e.Notices = len(report.Notices())
	}
	return e
}

// Store persists catalog entries in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the catalog at path, creating it and its directory if needed,
// and applies pending migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("catalog path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Upsert inserts or replaces the entry for e.Path together with its
// operations.
func (s *Store) Upsert(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := strings.TrimSpace(e.Path)
	if path == "" {
		return fmt.Errorf("entry path is required")
	}
	if e.ScannedAt.IsZero() {
		e.ScannedAt = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO files (
		   path, file_version, boards, cont_groups, spike_groups, samples,
		   events, trials, operations, valid, error, warnings, notices, scanned_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (path) DO UPDATE SET
		   file_version = excluded.file_version,
		   boards = excluded.boards,
		   cont_groups = excluded.cont_groups,
		   spike_groups = excluded.spike_groups,
		   samples = excluded.samples,
		   events = excluded.events,
		   trials = excluded.trials,
		   operations = excluded.operations,
		   valid = excluded.valid,
		   error = excluded.error,
		   warnings = excluded.warnings,
		   notices = excluded.notices,
		   scanned_at = excluded.scanned_at`,
		path,
		e.FileVersion,
		strings.Join(e.Boards, "\n"),
		e.ContGroups,
		e.SpikeGroups,
		e.Samples,
		e.Events,
		e.Trials,
		len(e.Operations),
		boolToInt(e.Valid),
		e.Error,
		e.Warnings,
		e.Notices,
		e.ScannedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", path, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM operations WHERE path = ?", path); err != nil {
		return fmt.Errorf("clear operations of %s: %w", path, err)
	}
	for _, op := range e.Operations {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO operations (path, name, tool, operator, date) VALUES (?, ?, ?, ?, ?)",
			path, op.Name, op.Tool, op.Operator, op.Date.String(),
		)
		if err != nil {
			return fmt.Errorf("insert operation %s of %s: %w", op.Name, path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

const selectFiles = `SELECT path, file_version, boards, cont_groups, spike_groups, samples,
        events, trials, valid, error, warnings, notices, scanned_at
   FROM files`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var boards string
	var valid int
	var scannedAt int64
	err := row.Scan(
		&e.Path,
		&e.FileVersion,
		&boards,
		&e.ContGroups,
		&e.SpikeGroups,
		&e.Samples,
		&e.Events,
		&e.Trials,
		&valid,
		&e.Error,
		&e.Warnings,
		&e.Notices,
		&scannedAt,
	)
	if err != nil {
		return Entry{}, err
	}
	if boards != "" {
		e.Boards = strings.Split(boards, "\n")
	}
	e.Valid = valid != 0
	e.ScannedAt = time.UnixMilli(scannedAt).UTC()
	return e, nil
}

// Get returns the entry for path, including its operations.
func (s *Store) Get(ctx context.Context, path string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	e, err := scanEntry(s.sqlDB.QueryRowContext(ctx, selectFiles+" WHERE path = ?", path))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get %s: %w", path, err)
	}
	if e.Operations, err = s.operations(ctx, path); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (s *Store) operations(ctx context.Context, path string) ([]dh5.Operation, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT name, tool, operator FROM operations WHERE path = ? ORDER BY name", path)
	if err != nil {
		return nil, fmt.Errorf("list operations of %s: %w", path, err)
	}
	defer rows.Close()

	var ops []dh5.Operation
	for rows.Next() {
		var op dh5.Operation
		if err := rows.Scan(&op.Name, &op.Tool, &op.Operator); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		op.Index = -1
		if idx, _, err := dh5.OperationIndexFromName(op.Name); err == nil {
			op.Index = idx
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// ListOptions filters List.
type ListOptions struct {
	InvalidOnly bool
	PathPrefix  string
}

// List returns the entries ordered by path. Operations are not loaded.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := selectFiles + " WHERE path LIKE ? ESCAPE '\\'"
	args := []any{escapeLike(opts.PathPrefix) + "%"}
	if opts.InvalidOnly {
		query += " AND valid = 0"
	}
	query += " ORDER BY path"

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes the entry for path and its operations.
func (s *Store) Delete(ctx context.Context, path string) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM operations WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete operations of %s: %w", path, err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM files WHERE path = ?", path)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
