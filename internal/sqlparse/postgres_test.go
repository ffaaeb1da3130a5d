// Tests for relational translation.
package sqlparse

import (
	"errors"
	"testing"

	"github.com/keeperhq/stockpile/pkg/types"
)

func TestPostgres_Placeholders(t *testing.T) {
	got, err := Postgres("UPDATE companies SET name = ?, description = ? WHERE id = ?", []any{"Acme", "Widgets", 3})
	if err != nil {
		t.Fatalf("Postgres failed: %v", err)
	}
	want := "UPDATE companies SET name = $1, description = $2 WHERE id = $3"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPostgres_InsertReturning(t *testing.T) {
	got, err := Postgres("INSERT INTO companies (name, description) VALUES (?, ?);", []any{"a", "b"})
	if err != nil {
		t.Fatalf("Postgres failed: %v", err)
	}
	want := "INSERT INTO companies (name, description) VALUES ($1, $2) RETURNING id"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPostgres_DateFunction(t *testing.T) {
	got, err := Postgres("SELECT * FROM sales WHERE date(sale_date) = date(?)", []any{"2026-08-30"})
	if err != nil {
		t.Fatalf("Postgres failed: %v", err)
	}
	want := "SELECT * FROM sales WHERE DATE(sale_date) = DATE($1)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPostgres_ParamCountMismatch(t *testing.T) {
	_, err := Postgres("SELECT * FROM products WHERE id = ?", nil)
	if !errors.Is(err, types.ErrParamCount) {
		t.Errorf("expected ErrParamCount, got %v", err)
	}
}

func TestPostgres_RejectsUnsupportedShape(t *testing.T) {
	_, err := Postgres("DROP TABLE products", nil)
	if !errors.Is(err, types.ErrUnsupportedQuery) {
		t.Errorf("expected ErrUnsupportedQuery, got %v", err)
	}
}

func TestPostgres_Deterministic(t *testing.T) {
	query := "INSERT INTO inventory (product_id, transaction_type, quantity) VALUES (?, ?, ?)"
	params := []any{"1", "IN", int64(5)}

	first, err := Postgres(query, params)
	if err != nil {
		t.Fatalf("Postgres failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Postgres(query, params)
		if err != nil {
			t.Fatalf("Postgres failed on repeat: %v", err)
		}
		if again != first {
			t.Fatalf("translation not deterministic: %q vs %q", again, first)
		}
	}
}
