package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"postcodejp/internal/app"
	"postcodejp/internal/models"
	"postcodejp/internal/service"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configDir string
}

func main() {
	_ = godotenv.Load(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "importer",
		Short:         "Load Japan Post postal-code archives into the database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configDir, "config", "./configs", "Directory containing app.env")

	cmd.AddCommand(
		newFullCmd(&opts),
		newCheckCmd(&opts),
		newDiffCmd(&opts),
		newHistoryCmd(&opts),
		newLoadCmd(&opts),
		newInitPrefecturesCmd(&opts),
	)
	return cmd
}

// withApp builds the application for one command and closes it afterwards.
func withApp(ctx context.Context, opts *rootOptions, fn func(*app.App) error) error {
	cfg, err := app.Load(opts.configDir)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// reportErr turns failed runs into a non-zero exit.
func reportErr(rep *service.SyncReport) error {
	for _, run := range []*models.SyncRun{rep.Addresses, rep.Offices} {
		if run != nil && run.Status == models.SyncStatusFailed {
			return fmt.Errorf("%s sync run %d failed", run.Dataset, run.ID)
		}
	}
	return nil
}

func newFullCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "full",
		Short: "Re-sync both datasets from the full archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				rep := a.Sync.SyncAll(cmd.Context())
				if err := printJSON(rep); err != nil {
					return err
				}
				return reportErr(rep)
			})
		},
	}
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Sync only when the published address archive is newer than the last sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				rep := a.Sync.CheckAndSync(cmd.Context())
				if err := printJSON(rep); err != nil {
					return err
				}
				return reportErr(rep)
			})
		},
	}
}

func newDiffCmd(opts *rootOptions) *cobra.Command {
	var yymm string

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Apply the monthly add and delete archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				run, err := a.Sync.SyncDiff(cmd.Context(), yymm)
				if err != nil {
					return err
				}
				if err := printJSON(run); err != nil {
					return err
				}
				return reportErr(&service.SyncReport{Addresses: run})
			})
		},
	}
	cmd.Flags().StringVar(&yymm, "yymm", "", "Year and month of the diff, e.g. 2501 (required)")
	_ = cmd.MarkFlagRequired("yymm")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the sync ledger, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				runs, err := a.Sync.History(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}
				return printJSON(runs)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", service.DefaultHistoryLimit, "Number of runs to print")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of runs to skip")
	return cmd
}
