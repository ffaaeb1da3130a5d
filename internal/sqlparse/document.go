package sqlparse

import (
	"fmt"
	"strings"

	"github.com/keeperhq/stockpile/pkg/types"
)

// Document method names, matching the execution server's wire contract.
const (
	MethodInsertOne = "insertOne"
	MethodFindOne   = "findOne"
	MethodFind      = "find"
	MethodUpdateOne = "updateOne"
	MethodDeleteOne = "deleteOne"
)

// DocRequest is the document-store rendering of a statement: a method,
// target collection, equality filter, field/value document, and optional
// cursor options.
type DocRequest struct {
	Method     string         `json:"method"`
	Collection string         `json:"collection"`
	Filter     map[string]any `json:"filter,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Options    *DocOptions    `json:"options,omitempty"`
}

// DocOptions carries cursor options; today only a {field: 1|-1} sort
// descriptor.
type DocOptions struct {
	Sort map[string]int `json:"sort,omitempty"`
}

// collectionNames maps SQL table names to document collections. The two
// stores use the same names today; the indirection keeps renames cheap.
var collectionNames = map[string]string{
	types.TableCompanies:   "companies",
	types.TableProducts:    "products",
	types.TableInventory:   "inventory",
	types.TableStockLevels: "stock_levels",
	types.TableCustomers:   "customers",
	types.TableSuppliers:   "suppliers",
	types.TableSales:       "sales",
	types.TableSaleItems:   "sale_items",
	types.TablePayments:    "payments",
	types.TableStaff:       "staff",
	types.TableAttendance:  "attendance",
	types.TableExpenses:    "expenses",
}

// CollectionFor returns the document collection for a SQL table name.
// Unknown tables pass through lowercased.
func CollectionFor(table string) string {
	if c, ok := collectionNames[strings.ToLower(table)]; ok {
		return c
	}
	return strings.ToLower(table)
}

// Document renders query into a document-store request. Select statements
// render as "find"; callers fetching a single row downgrade the method to
// "findOne". The date(col) comparison form has no document equivalent and
// is rejected.
func Document(query string, params []any) (*DocRequest, error) {
	q, err := Parse(query)
	if err != nil {
		return nil, err
	}
	if err := CheckParams(q, params); err != nil {
		return nil, err
	}

	switch s := q.(type) {
	case *Select:
		req := &DocRequest{Method: MethodFind, Collection: CollectionFor(s.From)}
		if s.Where != nil {
			f, err := filterFor(s.Where, params[0])
			if err != nil {
				return nil, err
			}
			req.Filter = f
		}
		if s.Order != nil {
			dir := 1
			if s.Order.Descending {
				dir = -1
			}
			req.Options = &DocOptions{Sort: map[string]int{s.Order.Column: dir}}
		}
		return req, nil

	case *Insert:
		data := make(map[string]any, len(s.Columns))
		for i, col := range s.Columns {
			data[col] = params[i]
		}
		return &DocRequest{
			Method:     MethodInsertOne,
			Collection: CollectionFor(s.Into),
			Data:       data,
		}, nil

	case *Update:
		data := make(map[string]any, len(s.Columns))
		for i, col := range s.Columns {
			data[col] = params[i]
		}
		f, err := filterFor(s.Where, params[len(s.Columns)])
		if err != nil {
			return nil, err
		}
		return &DocRequest{
			Method:     MethodUpdateOne,
			Collection: CollectionFor(s.Name),
			Filter:     f,
			Data:       data,
		}, nil

	case *Delete:
		f, err := filterFor(s.Where, params[0])
		if err != nil {
			return nil, err
		}
		return &DocRequest{
			Method:     MethodDeleteOne,
			Collection: CollectionFor(s.From),
			Filter:     f,
		}, nil
	}

	return nil, types.ErrUnsupportedQuery
}

func filterFor(eq *Equality, value any) (map[string]any, error) {
	if eq.DateTrunc {
		return nil, fmt.Errorf("%w: date() comparison has no document rendering", types.ErrUnsupportedQuery)
	}
	return map[string]any{eq.Column: value}, nil
}
