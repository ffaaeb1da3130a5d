// Package sales records sales against the storage layer: one denormalized
// header row, one row per line item, and one OUT ledger entry per item so
// sold stock leaves the derived quantities immediately.
package sales

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/keeperhq/stockpile/internal/stock"
	"github.com/keeperhq/stockpile/pkg/types"
)

// LineItem is one requested sale line before pricing is settled.
type LineItem struct {
	ProductID string
	Quantity  int64
	UnitPrice float64
	Discount  float64
	Tax       float64
}

// Request is a sale submission.
type Request struct {
	CustomerID    string
	PaymentMethod string
	PaymentStatus string
	Notes         string
	Items         []LineItem
}

// Service writes sales through the storage layer and the stock
// reconciler.
type Service struct {
	store      types.Store
	reconciler *stock.Reconciler
	log        *zap.Logger
}

// New creates a sales service over store.
func New(store types.Store, reconciler *stock.Reconciler, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, reconciler: reconciler, log: log}
}

// Submit validates stock for every line, writes the header and items, and
// records one OUT ledger entry per item. Amount arithmetic runs in
// decimal so repeated float64 addition cannot drift the totals.
func (s *Service) Submit(ctx context.Context, req Request) (types.Sale, error) {
	if len(req.Items) == 0 {
		return types.Sale{}, fmt.Errorf("sale has no items")
	}

	// Check every line before writing anything so a rejected line leaves
	// no partial sale behind.
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return types.Sale{}, fmt.Errorf("item quantity must be positive for product %s", item.ProductID)
		}
		available, err := s.reconciler.Quantity(ctx, item.ProductID)
		if err != nil {
			return types.Sale{}, err
		}
		if available < item.Quantity {
			return types.Sale{}, &stock.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: available,
			}
		}
	}

	total := decimal.Zero
	discount := decimal.Zero
	tax := decimal.Zero
	for _, item := range req.Items {
		line := decimal.NewFromFloat(item.UnitPrice).Mul(decimal.NewFromInt(item.Quantity))
		total = total.Add(line)
		discount = discount.Add(decimal.NewFromFloat(item.Discount))
		tax = tax.Add(decimal.NewFromFloat(item.Tax))
	}
	final := total.Sub(discount).Add(tax)

	sale := types.Sale{
		InvoiceNumber:  newInvoiceNumber(),
		CustomerID:     req.CustomerID,
		TotalAmount:    total.InexactFloat64(),
		DiscountAmount: discount.InexactFloat64(),
		TaxAmount:      tax.InexactFloat64(),
		FinalAmount:    final.InexactFloat64(),
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  req.PaymentStatus,
		Notes:          req.Notes,
	}
	if sale.PaymentStatus == "" {
		sale.PaymentStatus = "pending"
	}

	result, err := s.store.Prepare(
		"INSERT INTO sales (invoice_number, customer_id, total_amount, discount_amount, tax_amount, final_amount, payment_method, payment_status, notes) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)").
		Run(ctx, sale.InvoiceNumber, nullable(sale.CustomerID), sale.TotalAmount, sale.DiscountAmount,
			sale.TaxAmount, sale.FinalAmount, sale.PaymentMethod, sale.PaymentStatus, sale.Notes)
	if err != nil {
		return types.Sale{}, fmt.Errorf("write sale: %w", err)
	}
	sale.ID = result.LastInsertID

	for _, item := range req.Items {
		subtotal := decimal.NewFromFloat(item.UnitPrice).Mul(decimal.NewFromInt(item.Quantity)).
			Sub(decimal.NewFromFloat(item.Discount)).Add(decimal.NewFromFloat(item.Tax))

		_, err := s.store.Prepare(
			"INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, discount, tax, subtotal) VALUES (?, ?, ?, ?, ?, ?, ?)").
			Run(ctx, sale.ID, item.ProductID, item.Quantity, item.UnitPrice, item.Discount, item.Tax,
				subtotal.InexactFloat64())
		if err != nil {
			return types.Sale{}, fmt.Errorf("write sale item: %w", err)
		}

		err = s.reconciler.Record(ctx, types.InventoryTransaction{
			ProductID: item.ProductID,
			Type:      types.TransactionOut,
			Quantity:  item.Quantity,
			Notes:     "sale " + sale.InvoiceNumber,
		})
		if err != nil {
			return types.Sale{}, fmt.Errorf("record sale stock movement: %w", err)
		}
	}

	s.log.Info("sale recorded",
		zap.String("invoice", sale.InvoiceNumber),
		zap.Int("items", len(req.Items)),
		zap.Float64("final_amount", sale.FinalAmount))
	return sale, nil
}

// newInvoiceNumber builds a short unique invoice reference.
func newInvoiceNumber() string {
	fragment := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return "INV-" + fragment
}

// nullable turns an empty string into a SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
