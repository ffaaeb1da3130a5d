// Package stock derives stock levels from the append-only inventory
// ledger. The ledger is the source of truth: every quantity this package
// reports is recomputed by folding the product's full transaction
// history, and the cached stock_levels row is refreshed as a byproduct
// but never read back as truth.
package stock

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/keeperhq/stockpile/pkg/types"
)

// InsufficientStockError rejects an OUT transaction that would take a
// product's derived quantity below zero. Nothing is written when it is
// returned.
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Reconciler folds ledger history into stock quantities and keeps the
// stock_levels cache in step. It holds no state of its own; every call
// goes back to the store.
type Reconciler struct {
	store types.Store
	log   *zap.Logger
}

// New creates a reconciler over store.
func New(store types.Store, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: store, log: log}
}

// CanonicalID renders any backend's id value in its canonical string
// form. Integer keys become decimal digits, floats that carry integer
// keys lose their fraction, strings pass through.
func CanonicalID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case int64:
		return fmt.Sprintf("%d", id)
	case int:
		return fmt.Sprintf("%d", id)
	case float64:
		return fmt.Sprintf("%.0f", id)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", id)
	}
}

// Quantity folds the product's full ledger into its current stock count.
// IN entries add, OUT entries subtract; quantities are stored positive
// and the type column carries the sign.
func (r *Reconciler) Quantity(ctx context.Context, productID string) (int64, error) {
	rows, err := r.store.Prepare("SELECT * FROM inventory WHERE product_id = ?").All(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("load ledger: %w", err)
	}
	return fold(rows), nil
}

func fold(rows []types.Row) int64 {
	var total int64
	for _, row := range rows {
		qty := asInt(row["quantity"])
		switch strings.ToUpper(fmt.Sprintf("%v", row["transaction_type"])) {
		case types.TransactionIn:
			total += qty
		case types.TransactionOut:
			total -= qty
		}
	}
	return total
}

// Record appends one ledger entry and refreshes the cached stock level.
// An OUT entry that would drive the derived quantity negative is rejected
// with InsufficientStockError before anything is written.
func (r *Reconciler) Record(ctx context.Context, tx types.InventoryTransaction) error {
	if tx.Quantity <= 0 {
		return fmt.Errorf("transaction quantity must be positive, got %d", tx.Quantity)
	}
	if tx.Type != types.TransactionIn && tx.Type != types.TransactionOut {
		return fmt.Errorf("unknown transaction type %q", tx.Type)
	}

	if tx.Type == types.TransactionOut {
		available, err := r.Quantity(ctx, tx.ProductID)
		if err != nil {
			return err
		}
		if available < tx.Quantity {
			return &InsufficientStockError{
				ProductID: tx.ProductID,
				Requested: tx.Quantity,
				Available: available,
			}
		}
	}

	_, err := r.store.Prepare(
		"INSERT INTO inventory (product_id, transaction_type, quantity, batch_number, expiry_date, notes) VALUES (?, ?, ?, ?, ?, ?)").
		Run(ctx, tx.ProductID, tx.Type, tx.Quantity, tx.BatchNumber, tx.ExpiryDate, tx.Notes)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}

	// The cache refresh recomputes from the ledger rather than adjusting
	// incrementally, so a stale or missing cache row self-heals here. The
	// cache is advisory; a refresh failure does not fail the transaction.
	quantity, err := r.Quantity(ctx, tx.ProductID)
	if err == nil {
		err = r.refreshCache(ctx, tx.ProductID, quantity)
	}
	if err != nil {
		r.log.Warn("stock cache refresh failed", zap.String("product_id", tx.ProductID), zap.Error(err))
	}
	return nil
}

// refreshCache upserts the stock_levels row for a product. The two-step
// select-then-write shape is the widest SQL subset every backend accepts.
func (r *Reconciler) refreshCache(ctx context.Context, productID string, quantity int64) error {
	existing, err := r.store.Prepare("SELECT * FROM stock_levels WHERE product_id = ?").Get(ctx, productID)
	if err != nil {
		return fmt.Errorf("read stock cache: %w", err)
	}
	if existing != nil {
		_, err = r.store.Prepare("UPDATE stock_levels SET quantity = ? WHERE product_id = ?").
			Run(ctx, quantity, productID)
	} else {
		_, err = r.store.Prepare("INSERT INTO stock_levels (product_id, quantity) VALUES (?, ?)").
			Run(ctx, productID, quantity)
	}
	if err != nil {
		return fmt.Errorf("refresh stock cache: %w", err)
	}
	return nil
}

// Levels assembles the full stock report: one row per active product with
// company metadata, ledger-derived quantity, and the cached threshold.
// Four single-table fetches joined in memory, since the SQL subset the
// backends share has no JOIN.
func (r *Reconciler) Levels(ctx context.Context) ([]types.StockView, error) {
	products, err := r.store.Prepare("SELECT * FROM products").All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	companies, err := r.store.Prepare("SELECT * FROM companies").All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load companies: %w", err)
	}
	ledger, err := r.store.Prepare("SELECT * FROM inventory").All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	cache, err := r.store.Prepare("SELECT * FROM stock_levels").All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stock cache: %w", err)
	}

	companyNames := make(map[string]string, len(companies))
	for _, c := range companies {
		companyNames[CanonicalID(c["id"])] = fmt.Sprintf("%v", c["name"])
	}

	ledgerByProduct := make(map[string][]types.Row)
	for _, entry := range ledger {
		pid := CanonicalID(entry["product_id"])
		ledgerByProduct[pid] = append(ledgerByProduct[pid], entry)
	}

	cacheByProduct := make(map[string]types.Row, len(cache))
	for _, row := range cache {
		cacheByProduct[CanonicalID(row["product_id"])] = row
	}

	views := make([]types.StockView, 0, len(products))
	for _, p := range products {
		pid := CanonicalID(p["id"])
		view := types.StockView{
			ProductID:   pid,
			ProductName: asString(p["name"]),
			CompanyName: companyNames[CanonicalID(p["company_id"])],
			SKU:         asString(p["sku"]),
			Quantity:    fold(ledgerByProduct[pid]),
			SalePrice:   asFloat(p["sale_price"]),
		}
		if cached, ok := cacheByProduct[pid]; ok {
			view.LowStockThreshold = asInt(cached["low_stock_threshold"])
			view.UpdatedAt = asString(cached["updated_at"])
		}
		views = append(views, view)
	}

	sort.Slice(views, func(i, j int) bool { return views[i].ProductName < views[j].ProductName })
	return views, nil
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		var i int64
		fmt.Sscanf(n, "%d", &i)
		return i
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
