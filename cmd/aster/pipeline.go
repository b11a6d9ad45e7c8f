package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/aster/config"
	"github.com/Ramsey-B/aster/pkg/models"
)

// runPipeline starts the app, takes the run lock and hands fn the pipeline.
// SIGINT and SIGTERM cancel the run.
func runPipeline(cmd *cobra.Command, fn func(ctx context.Context, a *app) (*models.RunResult, error)) error {
	cfg := config.FromContext(cmd.Context())
	logger, sync, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, logger)
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		a.Stop(stopCtx)
	}()

	var result *models.RunResult
	err = a.withRunLock(ctx, func(ctx context.Context) error {
		var runErr error
		result, runErr = fn(ctx, a)
		return runErr
	})
	if result != nil {
		if printErr := printResult(cmd.OutOrStdout(), result); printErr != nil {
			logger.WithError(printErr).Warn("Failed to print run result")
		}
	}
	return err
}

func printResult(w io.Writer, result *models.RunResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Refresh the stage catalog, wait for approval and promote it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, func(ctx context.Context, a *app) (*models.RunResult, error) {
				return a.pipeline.Run(ctx)
			})
		},
	}
}

func refreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Seed, scan and validate the stage catalog without promoting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, func(ctx context.Context, a *app) (*models.RunResult, error) {
				return a.pipeline.Refresh(ctx)
			})
		},
	}
}

func approveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "approve",
		Short: "Send an approval request for the stage catalog and wait for it",
		Long:  "Sends an approval link and blocks until it is approved or expires. Prints APPROVED=true or APPROVED=false followed by the run summary.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, func(ctx context.Context, a *app) (*models.RunResult, error) {
				result, err := a.pipeline.AwaitApproval(ctx)
				if err != nil {
					return result, err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "APPROVED=%t\n", result.ApprovalState == models.ApprovalStateApproved)
				return result, nil
			})
		},
	}
}

func promoteCommand() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Replace the main catalog with stage once the given approval is granted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, func(ctx context.Context, a *app) (*models.RunResult, error) {
				return a.pipeline.Promote(ctx, token)
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "approval token from the approval link")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}
