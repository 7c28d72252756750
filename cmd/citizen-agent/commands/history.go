package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lcarli/Citizen-Agent-CLI/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past provisioning runs",
		Long: `List provisioning runs recorded in the local history database. With a
run ID argument, show that run's per-phase outcomes instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := stores.NewSQLiteStore(stores.Config{Path: historyDBPath})
			if err != nil {
				return err
			}
			if err := store.Init(ctx); err != nil {
				return fmt.Errorf("failed to open history database: %w", err)
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to migrate history database: %w", err)
			}

			if len(args) == 1 {
				return showRun(cmd, store, args[0])
			}

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}

			fmt.Printf("%-36s  %-10s  %-20s  %s\n", "RUN", "STATUS", "STARTED", "TENANT")
			for _, run := range runs {
				fmt.Printf("%-36s  %-10s  %-20s  %s\n",
					run.ID, run.Status,
					run.StartedAt.Local().Format(time.DateTime),
					run.TenantID)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

func showRun(cmd *cobra.Command, store *stores.SQLiteStore, runID string) error {
	ctx := cmd.Context()

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s (%s), started %s\n", run.ID, run.Status,
		run.StartedAt.Local().Format(time.DateTime))
	if run.Error != nil {
		fmt.Printf("Error: %s\n", *run.Error)
	}

	records, err := store.ListPhasesByRun(ctx, runID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No phase records.")
		return nil
	}

	fmt.Printf("\n%-14s  %-10s  %s\n", "PHASE", "OUTCOME", "DETAIL")
	for _, rec := range records {
		fmt.Printf("%-14s  %-10s  %s\n", rec.Phase, rec.Outcome, rec.Detail)
	}
	return nil
}
