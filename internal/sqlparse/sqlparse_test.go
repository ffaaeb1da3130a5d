// Tests for statement parsing and parameter checking.
package sqlparse

import (
	"errors"
	"testing"

	"github.com/keeperhq/stockpile/pkg/types"
)

func TestParse_Select(t *testing.T) {
	q, err := Parse("SELECT * FROM products WHERE company_id = ? ORDER BY name")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	sel, ok := q.(*Select)
	if !ok {
		t.Fatalf("expected *Select, got %T", q)
	}
	if sel.From != "products" {
		t.Errorf("From = %q, want products", sel.From)
	}
	if sel.Where == nil || sel.Where.Column != "company_id" {
		t.Errorf("unexpected Where: %+v", sel.Where)
	}
	if sel.Order == nil || sel.Order.Column != "name" || sel.Order.Descending {
		t.Errorf("unexpected Order: %+v", sel.Order)
	}
}

func TestParse_SelectOrderDesc(t *testing.T) {
	q, err := Parse("SELECT * FROM sales ORDER BY created_at DESC")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	sel := q.(*Select)
	if sel.Order == nil || !sel.Order.Descending {
		t.Errorf("expected descending order, got %+v", sel.Order)
	}
}

func TestParse_Insert(t *testing.T) {
	q, err := Parse("INSERT INTO companies (name, description) VALUES (?, ?)")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	ins, ok := q.(*Insert)
	if !ok {
		t.Fatalf("expected *Insert, got %T", q)
	}
	if ins.Into != "companies" {
		t.Errorf("Into = %q, want companies", ins.Into)
	}
	if len(ins.Columns) != 2 || ins.Columns[0] != "name" || ins.Columns[1] != "description" {
		t.Errorf("unexpected columns: %v", ins.Columns)
	}
}

func TestParse_InsertColumnValueMismatch(t *testing.T) {
	_, err := Parse("INSERT INTO companies (name, description) VALUES (?)")
	if !errors.Is(err, types.ErrParamCount) {
		t.Errorf("expected ErrParamCount, got %v", err)
	}
}

func TestParse_Update(t *testing.T) {
	q, err := Parse("UPDATE products SET name = ?, sale_price = ? WHERE id = ?")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	upd, ok := q.(*Update)
	if !ok {
		t.Fatalf("expected *Update, got %T", q)
	}
	if upd.Name != "products" {
		t.Errorf("Name = %q, want products", upd.Name)
	}
	if len(upd.Columns) != 2 {
		t.Errorf("expected 2 set columns, got %v", upd.Columns)
	}
	if upd.Where == nil || upd.Where.Column != "id" {
		t.Errorf("unexpected Where: %+v", upd.Where)
	}
}

func TestParse_UpdateRequiresWhere(t *testing.T) {
	_, err := Parse("UPDATE products SET name = ?")
	if !errors.Is(err, types.ErrUnsupportedQuery) {
		t.Errorf("expected ErrUnsupportedQuery, got %v", err)
	}
}

func TestParse_Delete(t *testing.T) {
	q, err := Parse("DELETE FROM customers WHERE id = ?")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	del, ok := q.(*Delete)
	if !ok {
		t.Fatalf("expected *Delete, got %T", q)
	}
	if del.From != "customers" {
		t.Errorf("From = %q, want customers", del.From)
	}
}

func TestParse_DeleteRequiresWhere(t *testing.T) {
	_, err := Parse("DELETE FROM customers")
	if !errors.Is(err, types.ErrUnsupportedQuery) {
		t.Errorf("expected ErrUnsupportedQuery, got %v", err)
	}
}

func TestParse_DateComparison(t *testing.T) {
	q, err := Parse("SELECT * FROM sales WHERE date(sale_date) = date(?)")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	sel := q.(*Select)
	if sel.Where == nil || !sel.Where.DateTrunc {
		t.Errorf("expected date-truncated Where, got %+v", sel.Where)
	}
}

func TestCheckParams(t *testing.T) {
	q, err := Parse("INSERT INTO companies (name, description) VALUES (?, ?)")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if err := CheckParams(q, []any{"a", "b"}); err != nil {
		t.Errorf("matching params should pass, got %v", err)
	}
	if err := CheckParams(q, []any{"a"}); !errors.Is(err, types.ErrParamCount) {
		t.Errorf("expected ErrParamCount, got %v", err)
	}
	if err := CheckParams(q, []any{"a", "b", "c"}); !errors.Is(err, types.ErrParamCount) {
		t.Errorf("expected ErrParamCount, got %v", err)
	}
}
