// Package main provides the stockpile CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keeperhq/stockpile/internal/hybrid"
	"github.com/keeperhq/stockpile/pkg/types"
)

var (
	// configDir is set by the --config-dir flag.
	configDir string

	// flagMode overrides the configured backend mode.
	flagMode string

	// flagDataDir overrides the configured data directory.
	flagDataDir string

	// verbose enables development logging.
	verbose bool

	// store is the global storage handle, attached on startup.
	store types.Store

	logger = zap.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stockpile",
	Short: "Stockpile is a small-business inventory and sales store",
	Long: `Stockpile manages inventory, stock levels, and sales for a small
business over interchangeable storage backends: an embedded engine
persisted as whole snapshots, a remote relational store, or a remote
document store.`,
	PersistentPreRunE: initStore,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeStore()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory (default: ~/.stockpile)")
	rootCmd.PersistentFlags().StringVar(&flagMode, "mode", "", "backend mode: local, postgres, mongodb, hybrid")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory for local snapshots")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(stockCmd)
	rootCmd.AddCommand(saleCmd)
}

// initStore loads config and attaches the configured backend.
func initStore(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = l
	}

	cfg, err := loadConfig(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flagMode != "" {
		cfg.Mode = types.Mode(flagMode)
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}

	s, err := hybrid.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if err := s.Attach(cfg); err != nil {
		return fmt.Errorf("attach store: %w", err)
	}
	store = s
	return nil
}

// closeStore detaches the store, flushing pending snapshot work.
func closeStore() error {
	if store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return store.Detach(ctx)
}
