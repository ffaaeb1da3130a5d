// Query commands execute raw statements against the attached backend.
package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Execute a statement against the attached backend",
}

func init() {
	queryCmd.AddCommand(queryRunCmd)
	queryCmd.AddCommand(queryGetCmd)
	queryCmd.AddCommand(queryAllCmd)
}

var queryRunCmd = &cobra.Command{
	Use:   "run <sql> [param...]",
	Short: "Execute a write statement",
	Long: `Run executes an INSERT, UPDATE, or DELETE statement. Parameters bind
to '?' placeholders left to right.

Example:
  stockpile query run "INSERT INTO companies (name) VALUES (?)" "Acme"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := store.Prepare(args[0]).Run(cmd.Context(), stringParams(args[1:])...)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		return printJSON(map[string]any{
			"lastInsertRowid": result.LastInsertID,
			"changes":         result.Changes,
		})
	},
}

var queryGetCmd = &cobra.Command{
	Use:   "get <sql> [param...]",
	Short: "Fetch the first matching row",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		row, err := store.Prepare(args[0]).Get(cmd.Context(), stringParams(args[1:])...)
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		return printJSON(row)
	},
}

var queryAllCmd = &cobra.Command{
	Use:   "all <sql> [param...]",
	Short: "Fetch every matching row",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := store.Prepare(args[0]).All(cmd.Context(), stringParams(args[1:])...)
		if err != nil {
			return fmt.Errorf("all: %w", err)
		}
		return printJSON(rows)
	},
}

func stringParams(args []string) []any {
	params := make([]any, len(args))
	for i, a := range args {
		params[i] = a
	}
	return params
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(output))
	return nil
}
