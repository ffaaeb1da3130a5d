// Tests for the sales service.
package sales

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/keeperhq/stockpile/internal/sqlite"
	"github.com/keeperhq/stockpile/internal/stock"
	"github.com/keeperhq/stockpile/pkg/types"
)

func testService(t *testing.T) (*Service, types.Store, *stock.Reconciler) {
	t.Helper()
	b := sqlite.New(nil)
	cfg := types.Config{Mode: types.ModeLocal, DataDir: t.TempDir()}
	if err := b.Attach(cfg); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	t.Cleanup(func() { b.Detach(context.Background()) })

	reconciler := stock.New(b, nil)
	return New(b, reconciler, nil), b, reconciler
}

func seedStock(t *testing.T, store types.Store, reconciler *stock.Reconciler, quantity int64) string {
	t.Helper()
	ctx := context.Background()
	if _, err := store.Prepare("INSERT INTO companies (name) VALUES (?)").Run(ctx, "Acme"); err != nil {
		t.Fatalf("seed company: %v", err)
	}
	result, err := store.Prepare("INSERT INTO products (company_id, name, sale_price) VALUES (?, ?, ?)").
		Run(ctx, "1", "Widget", 10.0)
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	pid := result.LastInsertID
	if quantity > 0 {
		err = reconciler.Record(ctx, types.InventoryTransaction{
			ProductID: pid, Type: types.TransactionIn, Quantity: quantity,
		})
		if err != nil {
			t.Fatalf("seed stock: %v", err)
		}
	}
	return pid
}

func TestSubmit_ComputesAmounts(t *testing.T) {
	ctx := context.Background()
	service, store, reconciler := testService(t)
	pid := seedStock(t, store, reconciler, 100)

	sale, err := service.Submit(ctx, Request{
		PaymentMethod: "cash",
		Items: []LineItem{
			{ProductID: pid, Quantity: 3, UnitPrice: 10.5, Discount: 1.5, Tax: 0.75},
			{ProductID: pid, Quantity: 2, UnitPrice: 4.25, Tax: 0.25},
		},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// total = 3*10.50 + 2*4.25 = 40.00; discount = 1.50; tax = 1.00
	if sale.TotalAmount != 40.0 {
		t.Errorf("total = %v, want 40.0", sale.TotalAmount)
	}
	if sale.DiscountAmount != 1.5 {
		t.Errorf("discount = %v, want 1.5", sale.DiscountAmount)
	}
	if sale.TaxAmount != 1.0 {
		t.Errorf("tax = %v, want 1.0", sale.TaxAmount)
	}
	if sale.FinalAmount != 39.5 {
		t.Errorf("final = %v, want 39.5", sale.FinalAmount)
	}
	if !strings.HasPrefix(sale.InvoiceNumber, "INV-") {
		t.Errorf("invoice number = %q, want INV- prefix", sale.InvoiceNumber)
	}
	if sale.PaymentStatus != "pending" {
		t.Errorf("payment status = %q, want pending default", sale.PaymentStatus)
	}
	if sale.ID == "" {
		t.Error("sale id not set from insert result")
	}
}

func TestSubmit_WritesItemsAndMovesStock(t *testing.T) {
	ctx := context.Background()
	service, store, reconciler := testService(t)
	pid := seedStock(t, store, reconciler, 50)

	sale, err := service.Submit(ctx, Request{
		Items: []LineItem{{ProductID: pid, Quantity: 20, UnitPrice: 10.0}},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	items, err := store.Prepare("SELECT * FROM sale_items WHERE sale_id = ?").All(ctx, sale.ID)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	quantity, err := reconciler.Quantity(ctx, pid)
	if err != nil {
		t.Fatalf("Quantity failed: %v", err)
	}
	if quantity != 30 {
		t.Errorf("quantity after sale = %d, want 30", quantity)
	}
}

func TestSubmit_RejectsOversellBeforeWriting(t *testing.T) {
	ctx := context.Background()
	service, store, reconciler := testService(t)
	pid := seedStock(t, store, reconciler, 5)

	_, err := service.Submit(ctx, Request{
		Items: []LineItem{{ProductID: pid, Quantity: 1000, UnitPrice: 10.0}},
	})
	var insufficient *stock.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}

	// The rejection must leave no sale, items, or ledger movements behind.
	sales, err := store.Prepare("SELECT * FROM sales").All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(sales) != 0 {
		t.Errorf("rejected sale left %d header rows", len(sales))
	}
	quantity, _ := reconciler.Quantity(ctx, pid)
	if quantity != 5 {
		t.Errorf("quantity = %d, want untouched 5", quantity)
	}
}

func TestSubmit_RejectsEmptyAndInvalid(t *testing.T) {
	ctx := context.Background()
	service, store, reconciler := testService(t)
	pid := seedStock(t, store, reconciler, 5)

	if _, err := service.Submit(ctx, Request{}); err == nil {
		t.Error("empty sale should be rejected")
	}
	_, err := service.Submit(ctx, Request{
		Items: []LineItem{{ProductID: pid, Quantity: 0, UnitPrice: 1}},
	})
	if err == nil {
		t.Error("zero quantity line should be rejected")
	}
}

func TestSubmit_InvoiceNumbersUnique(t *testing.T) {
	ctx := context.Background()
	service, store, reconciler := testService(t)
	pid := seedStock(t, store, reconciler, 100)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		sale, err := service.Submit(ctx, Request{
			Items: []LineItem{{ProductID: pid, Quantity: 1, UnitPrice: 1.0}},
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if seen[sale.InvoiceNumber] {
			t.Fatalf("duplicate invoice number %q", sale.InvoiceNumber)
		}
		seen[sale.InvoiceNumber] = true
	}
}
