package main

import (
	"context"
	"fmt"
	"runtime/debug"

	"postcodejp/internal/app"
	"postcodejp/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newLoadCmd(opts *rootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:       "load {addresses|offices}",
		Short:     "Replace a dataset from an already extracted directory of CSV files",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"addresses", "offices"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				var (
					run *models.SyncRun
					err error
				)
				switch args[0] {
				case "addresses":
					run, err = loadDataset(cmd.Context(), a.Engine, models.DatasetAddresses, dir, func(ctx context.Context, run *models.SyncRun) error {
						if _, err := a.Engine.InitPrefectures(ctx); err != nil {
							return err
						}
						if _, err := a.Engine.ClearAddresses(ctx); err != nil {
							return err
						}
						_, err := a.Engine.ImportAddresses(ctx, dir, run)
						return err
					})
				case "offices":
					run, err = loadDataset(cmd.Context(), a.Engine, models.DatasetOffices, dir, func(ctx context.Context, run *models.SyncRun) error {
						if _, err := a.Engine.ClearOffices(ctx); err != nil {
							return err
						}
						_, err := a.Engine.ImportOffices(ctx, dir, run)
						return err
					})
				}
				if err != nil {
					return err
				}
				if a.Cache != nil {
					if err := a.Cache.Invalidate(context.WithoutCancel(cmd.Context())); err != nil {
						log.Warn().Err(err).Msg("failed to invalidate lookup cache")
					}
				}
				if err := printJSON(run); err != nil {
					return err
				}
				if run.Status == models.SyncStatusFailed {
					return fmt.Errorf("%s load failed", run.Dataset)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory containing the extracted CSV files (required)")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

// runRecorder opens and closes ledger runs.
type runRecorder interface {
	BeginRun(ctx context.Context, kind models.SyncKind, dataset models.Dataset, sourceURL string) (*models.SyncRun, error)
	CompleteRun(ctx context.Context, run *models.SyncRun, status models.SyncStatusValue, errorMessage string) error
}

// loadDataset records a full run around body, sourced from a local directory.
// Errors and panics in body complete the run as failed.
func loadDataset(ctx context.Context, runs runRecorder, dataset models.Dataset, dir string, body func(context.Context, *models.SyncRun) error) (run *models.SyncRun, err error) {
	run, err = runs.BeginRun(ctx, models.SyncKindFull, dataset, "file://"+dir)
	if err != nil {
		return nil, err
	}

	var bodyErr error
	defer func() {
		if r := recover(); r != nil {
			bodyErr = fmt.Errorf("panic: %v", r)
			log.Error().Str("stack", string(debug.Stack())).Int64("run_id", run.ID).Msg("load panicked")
		}
		status, msg := models.SyncStatusCompleted, ""
		if bodyErr != nil {
			status, msg = models.SyncStatusFailed, bodyErr.Error()
		}
		if cerr := runs.CompleteRun(ctx, run, status, msg); cerr != nil {
			err = cerr
		}
	}()

	bodyErr = body(ctx, run)
	return run, nil
}

func newInitPrefecturesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init-prefectures",
		Short: "Seed the 47 prefectures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				n, err := a.Engine.InitPrefectures(cmd.Context())
				if err != nil {
					return err
				}
				log.Info().Int("inserted", n).Msg("prefectures initialized")
				return nil
			})
		},
	}
}
