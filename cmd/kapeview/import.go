package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kapeview/kapeview/internal/duckdb"
	"github.com/kapeview/kapeview/internal/evidence"
	"github.com/kapeview/kapeview/internal/model"
)

var importCmd = &cobra.Command{
	Use:   "import <evidence-id> <mft|amcache|security> <csv>",
	Short: "Load a parser CSV into the store for an existing evidence.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, ok := model.ParseDataset(args[1])
		if !ok {
			return &exitError{code: 2, err: fmt.Errorf("unknown dataset %q", args[1])}
		}
		cfg, err := loadConfig(configPath)
		if err != nil {
			return &exitError{code: 2, err: fmt.Errorf("loading config: %w", err)}
		}

		store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
		if err != nil {
			return fmt.Errorf("failed to initialize DuckDB: %w", err)
		}
		defer store.Close()

		ctx := cmd.Context()
		ev, err := store.EvidenceByID(ctx, args[0])
		if err != nil {
			return fmt.Errorf("evidence %s: %w", args[0], err)
		}
		rows, err := evidence.ReadCSV(args[2], ds)
		if err != nil {
			return err
		}
		n, err := store.ReplaceRecords(ctx, ev.ID, ds, rows)
		if err != nil {
			return err
		}

		if ev.Summary == nil {
			ev.Summary = model.Summary{}
		}
		ev.Summary[evidence.SummaryRowsKey(ds)] = n
		if err := store.UpdateEvidence(ctx, ev); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d %s rows into evidence %s\n", n, len(rows), ds, ev.ID)
		return nil
	},
}
