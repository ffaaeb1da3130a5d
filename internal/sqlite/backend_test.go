// Tests for the embedded backend.
package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/keeperhq/stockpile/pkg/types"
)

func testConfig(t *testing.T) types.Config {
	t.Helper()
	return types.Config{
		Mode:    types.ModeLocal,
		DataDir: t.TempDir(),
	}
}

func attach(t *testing.T, cfg types.Config) *Backend {
	t.Helper()
	b := New(nil)
	if err := b.Attach(cfg); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	return b
}

func TestBackend_Attach(t *testing.T) {
	cfg := testConfig(t)
	b := attach(t, cfg)
	defer b.Detach(context.Background())

	if b.Mode() != types.ModeLocal {
		t.Errorf("Mode = %q, want local", b.Mode())
	}
	if err := b.Attach(cfg); !errors.Is(err, types.ErrAlreadyAttached) {
		t.Errorf("expected ErrAlreadyAttached, got %v", err)
	}

	// Cold start schedules an initial snapshot; flush it via Detach and
	// verify the file landed.
	if err := b.Detach(context.Background()); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	snapPath := filepath.Join(cfg.DataDir, types.DefaultSnapshotKey)
	if _, err := os.Stat(snapPath); err != nil {
		t.Errorf("snapshot not written on detach: %v", err)
	}
}

func TestBackend_DetachIdempotent(t *testing.T) {
	b := attach(t, testConfig(t))

	if err := b.Detach(context.Background()); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if err := b.Detach(context.Background()); err != nil {
		t.Errorf("second Detach should not error, got %v", err)
	}

	_, err := b.Prepare("SELECT * FROM companies").All(context.Background())
	if !errors.Is(err, types.ErrStoreDetached) {
		t.Errorf("expected ErrStoreDetached, got %v", err)
	}
}

func TestBackend_RunAndReadBack(t *testing.T) {
	ctx := context.Background()
	b := attach(t, testConfig(t))
	defer b.Detach(ctx)

	result, err := b.Prepare("INSERT INTO companies (name, description) VALUES (?, ?)").
		Run(ctx, "Acme", "distributor")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.LastInsertID != "1" {
		t.Errorf("LastInsertID = %q, want 1", result.LastInsertID)
	}
	if result.Changes != 1 {
		t.Errorf("Changes = %d, want 1", result.Changes)
	}

	row, err := b.Prepare("SELECT * FROM companies WHERE id = ?").Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if row == nil {
		t.Fatal("expected a row")
	}
	if row["name"] != "Acme" {
		t.Errorf("name = %v, want Acme", row["name"])
	}
	if id, ok := row["id"].(int64); !ok || id != 1 {
		t.Errorf("id = %v (%T), want int64 1", row["id"], row["id"])
	}
}

func TestBackend_GetMissingRowIsNil(t *testing.T) {
	ctx := context.Background()
	b := attach(t, testConfig(t))
	defer b.Detach(ctx)

	row, err := b.Prepare("SELECT * FROM companies WHERE id = ?").Get(ctx, "999")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if row != nil {
		t.Errorf("expected nil row, got %v", row)
	}
}

func TestBackend_FlatAndSliceParams(t *testing.T) {
	ctx := context.Background()
	b := attach(t, testConfig(t))
	defer b.Detach(ctx)

	insert := "INSERT INTO companies (name, description) VALUES (?, ?)"
	if _, err := b.Prepare(insert).Run(ctx, "Flat", "x"); err != nil {
		t.Fatalf("flat params failed: %v", err)
	}
	if _, err := b.Prepare(insert).Run(ctx, []any{"Slice", "y"}); err != nil {
		t.Fatalf("slice params failed: %v", err)
	}

	rows, err := b.Prepare("SELECT * FROM companies").All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(rows))
	}
}

func TestBackend_CompanyDeleteRestricted(t *testing.T) {
	ctx := context.Background()
	b := attach(t, testConfig(t))
	defer b.Detach(ctx)

	if _, err := b.Prepare("INSERT INTO companies (name) VALUES (?)").Run(ctx, "Acme"); err != nil {
		t.Fatalf("insert company: %v", err)
	}
	if _, err := b.Prepare("INSERT INTO products (company_id, name) VALUES (?, ?)").Run(ctx, "1", "Widget"); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	// A company that still owns products must not be deletable.
	if _, err := b.Prepare("DELETE FROM companies WHERE id = ?").Run(ctx, "1"); err == nil {
		t.Fatal("expected foreign key failure deleting company with products")
	}

	row, err := b.Prepare("SELECT * FROM companies WHERE id = ?").Get(ctx, "1")
	if err != nil || row == nil {
		t.Fatalf("company should survive failed delete: row=%v err=%v", row, err)
	}
}

func TestBackend_ProductDeleteCascades(t *testing.T) {
	ctx := context.Background()
	b := attach(t, testConfig(t))
	defer b.Detach(ctx)

	mustRun := func(query string, params ...any) {
		t.Helper()
		if _, err := b.Prepare(query).Run(ctx, params...); err != nil {
			t.Fatalf("%s: %v", query, err)
		}
	}
	mustRun("INSERT INTO companies (name) VALUES (?)", "Acme")
	mustRun("INSERT INTO products (company_id, name) VALUES (?, ?)", "1", "Widget")
	mustRun("INSERT INTO inventory (product_id, transaction_type, quantity) VALUES (?, ?, ?)", "1", "IN", "10")
	mustRun("INSERT INTO stock_levels (product_id, quantity) VALUES (?, ?)", "1", "10")

	mustRun("DELETE FROM products WHERE id = ?", "1")

	ledger, err := b.Prepare("SELECT * FROM inventory WHERE product_id = ?").All(ctx, "1")
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(ledger) != 0 {
		t.Errorf("ledger entries should cascade, found %d", len(ledger))
	}
	cache, err := b.Prepare("SELECT * FROM stock_levels WHERE product_id = ?").Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cache != nil {
		t.Errorf("stock cache should cascade, found %v", cache)
	}
}

func TestBackend_SnapshotSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	b := attach(t, cfg)
	if _, err := b.Prepare("INSERT INTO companies (name, description) VALUES (?, ?)").
		Run(ctx, "Acme", "persisted"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := b.Detach(ctx); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}

	// A fresh backend over the same data dir restores the snapshot whole.
	b2 := attach(t, cfg)
	defer b2.Detach(ctx)

	row, err := b2.Prepare("SELECT * FROM companies WHERE name = ?").Get(ctx, "Acme")
	if err != nil {
		t.Fatalf("Get after restart failed: %v", err)
	}
	if row == nil {
		t.Fatal("row lost across restart")
	}
	if row["description"] != "persisted" {
		t.Errorf("description = %v, want persisted", row["description"])
	}

	// AUTOINCREMENT counters survive too: the next insert must not reuse
	// the restored row's id.
	result, err := b2.Prepare("INSERT INTO companies (name) VALUES (?)").Run(ctx, "Next")
	if err != nil {
		t.Fatalf("Run after restart failed: %v", err)
	}
	if result.LastInsertID != "2" {
		t.Errorf("LastInsertID after restart = %q, want 2", result.LastInsertID)
	}
}
