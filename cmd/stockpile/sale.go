// Sale commands submit sales through the sales service.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keeperhq/stockpile/internal/sales"
	"github.com/keeperhq/stockpile/internal/stock"
)

var saleCmd = &cobra.Command{
	Use:   "sale",
	Short: "Record sales",
}

var saleFile string

func init() {
	saleSubmitCmd.Flags().StringVarP(&saleFile, "file", "f", "", "JSON file with the sale request (default: stdin)")
	saleCmd.AddCommand(saleSubmitCmd)
}

var saleSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a sale from a JSON request",
	Long: `Submit reads a sale request as JSON, validates stock for every line,
writes the sale with its items, and records the stock movements.

Request shape:
  {
    "customer_id": "7",
    "payment_method": "cash",
    "items": [
      {"product_id": "42", "quantity": 2, "unit_price": 10.5}
    ]
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		input := os.Stdin
		if saleFile != "" {
			f, err := os.Open(saleFile)
			if err != nil {
				return fmt.Errorf("open request file: %w", err)
			}
			defer f.Close()
			input = f
		}

		var req saleRequest
		if err := json.NewDecoder(input).Decode(&req); err != nil {
			return fmt.Errorf("decode sale request: %w", err)
		}

		service := sales.New(store, stock.New(store, logger), logger)
		sale, err := service.Submit(cmd.Context(), req.toService())
		var insufficient *stock.InsufficientStockError
		if errors.As(err, &insufficient) {
			return fmt.Errorf("rejected: %s", insufficient)
		}
		if err != nil {
			return fmt.Errorf("submit sale: %w", err)
		}
		return printJSON(sale)
	},
}

// saleRequest is the CLI's JSON shape for a sale submission.
type saleRequest struct {
	CustomerID    string `json:"customer_id"`
	PaymentMethod string `json:"payment_method"`
	PaymentStatus string `json:"payment_status"`
	Notes         string `json:"notes"`
	Items         []struct {
		ProductID string  `json:"product_id"`
		Quantity  int64   `json:"quantity"`
		UnitPrice float64 `json:"unit_price"`
		Discount  float64 `json:"discount"`
		Tax       float64 `json:"tax"`
	} `json:"items"`
}

func (r saleRequest) toService() sales.Request {
	req := sales.Request{
		CustomerID:    r.CustomerID,
		PaymentMethod: r.PaymentMethod,
		PaymentStatus: r.PaymentStatus,
		Notes:         r.Notes,
	}
	for _, item := range r.Items {
		req.Items = append(req.Items, sales.LineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Discount:  item.Discount,
			Tax:       item.Tax,
		})
	}
	return req
}
