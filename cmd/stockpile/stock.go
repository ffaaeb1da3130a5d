// Stock commands report and mutate ledger-derived stock levels.
package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keeperhq/stockpile/internal/stock"
	"github.com/keeperhq/stockpile/pkg/types"
)

var stockCmd = &cobra.Command{
	Use:   "stock",
	Short: "Inspect and record inventory movements",
}

var (
	stockBatch  string
	stockExpiry string
	stockNotes  string
)

func init() {
	stockRecordCmd.Flags().StringVar(&stockBatch, "batch", "", "batch number")
	stockRecordCmd.Flags().StringVar(&stockExpiry, "expiry", "", "expiry date (YYYY-MM-DD)")
	stockRecordCmd.Flags().StringVar(&stockNotes, "notes", "", "free-form notes")

	stockCmd.AddCommand(stockLevelsCmd)
	stockCmd.AddCommand(stockRecordCmd)
}

var stockLevelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "Show current stock for every product",
	Long: `Levels prints one row per product with the quantity derived from the
full inventory ledger, joined with product and company metadata.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reconciler := stock.New(store, logger)
		views, err := reconciler.Levels(cmd.Context())
		if err != nil {
			return fmt.Errorf("stock levels: %w", err)
		}
		return printJSON(views)
	},
}

var stockRecordCmd = &cobra.Command{
	Use:   "record <IN|OUT> <product-id> <quantity>",
	Short: "Append an inventory transaction",
	Long: `Record appends one ledger entry and refreshes the cached stock level.
An OUT movement larger than the available stock is rejected.

Example:
  stockpile stock record IN 42 50
  stockpile stock record OUT 42 20 --notes "damaged in transit"`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var quantity int64
		if _, err := fmt.Sscanf(args[2], "%d", &quantity); err != nil {
			return fmt.Errorf("quantity must be an integer: %q", args[2])
		}

		reconciler := stock.New(store, logger)
		err := reconciler.Record(cmd.Context(), types.InventoryTransaction{
			ProductID:   args[1],
			Type:        args[0],
			Quantity:    quantity,
			BatchNumber: stockBatch,
			ExpiryDate:  stockExpiry,
			Notes:       stockNotes,
		})
		var insufficient *stock.InsufficientStockError
		if errors.As(err, &insufficient) {
			return fmt.Errorf("rejected: %s", insufficient)
		}
		if err != nil {
			return fmt.Errorf("record transaction: %w", err)
		}

		remaining, err := reconciler.Quantity(cmd.Context(), args[1])
		if err != nil {
			return fmt.Errorf("read back quantity: %w", err)
		}
		return printJSON(map[string]any{
			"product_id": args[1],
			"quantity":   remaining,
		})
	},
}
