package types

// Table names shared by every backend. The document backend maps these to
// collection names one-to-one.
const (
	TableCompanies   = "companies"
	TableProducts    = "products"
	TableInventory   = "inventory"
	TableStockLevels = "stock_levels"
	TableCustomers   = "customers"
	TableSuppliers   = "suppliers"
	TableSales       = "sales"
	TableSaleItems   = "sale_items"
	TablePayments    = "payments"
	TableStaff       = "staff"
	TableAttendance  = "attendance"
	TableExpenses    = "expenses"
)

// Inventory transaction types. IN adds stock, OUT removes it.
const (
	TransactionIn  = "IN"
	TransactionOut = "OUT"
)

// InventoryTransaction is one append-only ledger entry. The ledger is the
// source of truth for stock: entries are never mutated or deleted except
// by cascade when the parent product is deleted.
type InventoryTransaction struct {
	ProductID   string `json:"product_id"`
	Type        string `json:"transaction_type"`
	Quantity    int64  `json:"quantity"`
	BatchNumber string `json:"batch_number,omitempty"`
	ExpiryDate  string `json:"expiry_date,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// StockView is the assembled per-product stock row: product and company
// metadata joined in memory with the ledger-derived quantity. Quantity is
// always recomputed from the ledger; the cached stock_levels row
// contributes only LowStockThreshold and UpdatedAt.
type StockView struct {
	ProductID         string  `json:"product_id"`
	ProductName       string  `json:"product_name"`
	CompanyName       string  `json:"company_name"`
	SKU               string  `json:"sku,omitempty"`
	Quantity          int64   `json:"quantity"`
	LowStockThreshold int64   `json:"low_stock_threshold"`
	SalePrice         float64 `json:"sale_price"`
	UpdatedAt         string  `json:"updated_at,omitempty"`
}

// Sale is the denormalized sale header. Amounts are computed once at
// submission time and stored as written; they are not recomputed from
// items on read.
type Sale struct {
	ID             string  `json:"id"`
	InvoiceNumber  string  `json:"invoice_number"`
	CustomerID     string  `json:"customer_id,omitempty"`
	TotalAmount    float64 `json:"total_amount"`
	DiscountAmount float64 `json:"discount_amount"`
	TaxAmount      float64 `json:"tax_amount"`
	FinalAmount    float64 `json:"final_amount"`
	PaymentMethod  string  `json:"payment_method,omitempty"`
	PaymentStatus  string  `json:"payment_status,omitempty"`
	Notes          string  `json:"notes,omitempty"`
}

// SaleItem is one line of a sale. Items are created together with their
// sale and removed by cascade when it is deleted.
type SaleItem struct {
	SaleID    string  `json:"sale_id"`
	ProductID string  `json:"product_id"`
	Quantity  int64   `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Discount  float64 `json:"discount"`
	Tax       float64 `json:"tax"`
	Subtotal  float64 `json:"subtotal"`
}
