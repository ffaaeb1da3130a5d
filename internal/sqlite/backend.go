// Package sqlite implements the embedded storage backend. The engine runs
// fully in memory; its entire binary image is the unit of persistence,
// exported with VACUUM INTO and written whole to a snapshot target after
// every write, on a fixed autosave interval, and on detach.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/keeperhq/stockpile/internal/snapshot"
	"github.com/keeperhq/stockpile/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

// Backend implements types.Store over an in-memory SQLite engine.
type Backend struct {
	mu       sync.Mutex
	attached bool
	config   types.Config
	db       *sql.DB
	target   snapshot.Target
	saver    *snapshot.Scheduler
	log      *zap.Logger
}

// New creates a detached backend. Pass nil to log to stderr-free noop.
func New(log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{log: log}
}

// Mode reports the backend kind.
func (b *Backend) Mode() types.Mode { return types.ModeLocal }

// Attach opens the in-memory engine, restores the prior snapshot if one
// exists (creating the schema and an initial snapshot otherwise), and
// starts the persistence scheduler. Returns ErrAlreadyAttached if called
// while attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	// One connection forever: each pooled connection would get its own
	// private memory database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	ctx := context.Background()
	b.target = snapshot.Resolve(ctx, config, b.log)

	var data []byte
	if b.target != nil {
		if data, err = b.target.Load(ctx); err != nil {
			b.log.Warn("snapshot load failed, starting fresh", zap.Error(err))
			data = nil
		}
	}

	if data != nil {
		if err := restore(db, data); err != nil {
			db.Close()
			b.closeTarget()
			return fmt.Errorf("restore snapshot: %w", err)
		}
		b.log.Info("snapshot restored", zap.String("target", b.target.Name()), zap.Int("bytes", len(data)))
	} else {
		if _, err := db.Exec(schemaSQL); err != nil {
			db.Close()
			b.closeTarget()
			return fmt.Errorf("create schema: %w", err)
		}
	}

	b.db = db
	b.config = config
	b.attached = true

	b.saver = snapshot.NewScheduler(b.export, b.target, config.AutosaveIntervalOrDefault(), b.log)
	b.saver.Start()

	// Cold start persists the empty schema so a crash before the first
	// write still leaves a loadable snapshot.
	if data == nil {
		b.saver.Request()
	}

	return nil
}

// Detach flushes one final snapshot within ctx's deadline, stops the
// scheduler, and closes the engine and the snapshot target. Idempotent.
// The final save is best effort: a deadline hit is logged, not returned.
func (b *Backend) Detach(ctx context.Context) error {
	b.mu.Lock()
	if !b.attached {
		b.mu.Unlock()
		return nil
	}
	saver := b.saver
	b.mu.Unlock()

	// Flush outside the lock: the export callback locks b.mu itself.
	if err := saver.Flush(ctx); err != nil {
		b.log.Warn("final snapshot flush incomplete", zap.Error(err))
	}
	saver.Stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return nil
	}
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	b.closeTarget()
	b.db = nil
	b.attached = false
	return nil
}

// closeTarget releases the snapshot target's connection, if any. Caller
// holds b.mu.
func (b *Backend) closeTarget() {
	if b.target == nil {
		return
	}
	if err := b.target.Close(); err != nil {
		b.log.Warn("snapshot target close failed", zap.String("target", b.target.Name()), zap.Error(err))
	}
	b.target = nil
}

// Prepare returns a statement bound to this backend. The query text runs
// unmodified; the embedded engine speaks the input dialect natively.
func (b *Backend) Prepare(query string) types.Statement {
	return &statement{backend: b, query: query}
}

type statement struct {
	backend *Backend
	query   string
}

// Run executes a write, reads back the generated rowid, and requests a
// coalesced background snapshot save. Changes is reported as 1 for
// single-statement writes; there are no batch semantics.
func (s *statement) Run(ctx context.Context, params ...any) (types.Result, error) {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.Result{}, types.ErrStoreDetached
	}

	flat := types.FlattenParams(params)
	res, err := b.db.ExecContext(ctx, s.query, flat...)
	if err != nil {
		return types.Result{}, fmt.Errorf("run: %w", err)
	}

	rowid, err := res.LastInsertId()
	if err != nil {
		rowid = 0
	}

	b.saver.Request()

	return types.Result{
		LastInsertID: strconv.FormatInt(rowid, 10),
		Changes:      1,
	}, nil
}

// Get returns the first matching row with numeric text coerced, or nil
// when nothing matches.
func (s *statement) Get(ctx context.Context, params ...any) (types.Row, error) {
	rows, err := s.All(ctx, params...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// All returns every matching row. Column values that look numeric are
// coerced to int64/float64 so the engine's text affinity matches the
// numeric types the other backends produce.
func (s *statement) All(ctx context.Context, params ...any) ([]types.Row, error) {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil, types.ErrStoreDetached
	}

	flat := types.FlattenParams(params)
	rows, err := b.db.QueryContext(ctx, s.query, flat...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	results := []types.Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(types.Row, len(cols))
		for i, col := range cols {
			row[col] = coerce(vals[i])
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// coerce normalizes a scanned value: byte slices become strings, and
// numeric-looking strings become int64 or float64.
func coerce(v any) any {
	if bs, ok := v.([]byte); ok {
		v = string(bs)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return v
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return v
}

// export produces the engine's full binary image via VACUUM INTO a temp
// file. Runs on the scheduler goroutine; takes the backend lock so it
// never overlaps a write.
func (b *Backend) export(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached || b.db == nil {
		return nil, types.ErrStoreDetached
	}

	tmp := filepath.Join(os.TempDir(), "stockpile-export-"+uuid.NewString()+".db")
	defer os.Remove(tmp)

	if _, err := b.db.ExecContext(ctx, "VACUUM INTO "+quoteLiteral(tmp)); err != nil {
		return nil, fmt.Errorf("vacuum into: %w", err)
	}
	data, err := os.ReadFile(tmp)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return data, nil
}

// restore loads a snapshot image: the blob is written to a temp file,
// attached, and its schema and rows are copied into the memory database.
// Schema creation from schema.sql is skipped; the snapshot's own DDL is
// authoritative.
func restore(db *sql.DB, data []byte) error {
	tmp := filepath.Join(os.TempDir(), "stockpile-restore-"+uuid.NewString()+".db")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write restore temp: %w", err)
	}
	defer os.Remove(tmp)

	if _, err := db.Exec("ATTACH DATABASE " + quoteLiteral(tmp) + " AS snap"); err != nil {
		return fmt.Errorf("attach snapshot: %w", err)
	}
	defer db.Exec("DETACH DATABASE snap")

	// Row copy order is arbitrary, so constraints stay off until the end.
	if _, err := db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		return err
	}
	defer db.Exec("PRAGMA foreign_keys = ON")

	rows, err := db.Query(
		"SELECT name, sql FROM snap.sqlite_master WHERE sql IS NOT NULL AND name NOT LIKE 'sqlite_%' ORDER BY CASE type WHEN 'table' THEN 0 ELSE 1 END")
	if err != nil {
		return fmt.Errorf("read snapshot schema: %w", err)
	}
	defer rows.Close()

	type object struct{ name, ddl string }
	var tables, others []object
	for rows.Next() {
		var o object
		if err := rows.Scan(&o.name, &o.ddl); err != nil {
			return fmt.Errorf("scan snapshot schema: %w", err)
		}
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(o.ddl)), "CREATE TABLE") {
			tables = append(tables, o)
		} else {
			others = append(others, o)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	for _, t := range tables {
		if _, err := db.Exec(t.ddl); err != nil {
			return fmt.Errorf("recreate table %s: %w", t.name, err)
		}
		copySQL := fmt.Sprintf("INSERT INTO main.%s SELECT * FROM snap.%s", t.name, t.name)
		if _, err := db.Exec(copySQL); err != nil {
			return fmt.Errorf("copy rows into %s: %w", t.name, err)
		}
	}
	for _, o := range others {
		if _, err := db.Exec(o.ddl); err != nil {
			return fmt.Errorf("recreate %s: %w", o.name, err)
		}
	}

	// Keep AUTOINCREMENT counters so restored tables do not reissue ids.
	var hasSeq int
	err = db.QueryRow(
		"SELECT COUNT(*) FROM snap.sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'").Scan(&hasSeq)
	if err == nil && hasSeq > 0 {
		if _, err := db.Exec(
			"INSERT OR REPLACE INTO main.sqlite_sequence(name, seq) SELECT name, seq FROM snap.sqlite_sequence"); err != nil {
			return fmt.Errorf("restore sequences: %w", err)
		}
	}

	return nil
}

// quoteLiteral wraps a path as a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
