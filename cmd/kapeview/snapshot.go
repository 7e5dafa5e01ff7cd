package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kapeview/kapeview/internal/backup"
	"github.com/kapeview/kapeview/internal/duckdb"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Write one store snapshot (and upload it when S3 is configured).",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return &exitError{code: 2, err: fmt.Errorf("loading config: %w", err)}
		}
		store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
		if err != nil {
			return fmt.Errorf("failed to initialize DuckDB: %w", err)
		}
		defer store.Close()

		m, err := backup.NewManager(store, cfg.Backup)
		if err != nil {
			return err
		}
		dst, err := m.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), dst)
		return nil
	},
}
