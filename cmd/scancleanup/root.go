package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"ScanCleanup/internal/config"
	"ScanCleanup/internal/dependencies"
	"ScanCleanup/internal/server"
	"ScanCleanup/internal/shared/constants"
	"ScanCleanup/pkg/logger"
	"ScanCleanup/pkg/validator"
)

const skipConfigAnnotation = "skip-config"

type rootOptions struct {
	configPath string
	output     string
	logLevel   string
	version    string

	cfg         *config.Config
	logger      *slog.Logger
	closeOutput func() error
}

func newRootCommand(version string) *cobra.Command {
	opts := &rootOptions{version: version}

	cmd := &cobra.Command{
		Use:   "scancleanup",
		Short: "Nexpose scan queue cleanup",
		Long: `scancleanup resumes paused Nexpose scans as queue capacity frees up,
cheapest first, until no active or paused scans remain.

It also stops scans in bulk, waits for the console to come back after a
restart and waits for the scan queue to go idle before maintenance.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  opts.setup,
		PersistentPostRunE: opts.teardown,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default configs/config.yaml)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format: table, json, yaml")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	cmd.AddCommand(
		newRunCommand(opts),
		newScheduleCommand(opts),
		newStatusCommand(opts),
		newHistoryCommand(opts),
		newScansCommand(opts),
		newStopPausedCommand(opts),
		newStopEngineCommand(opts),
		newWaitServiceCommand(opts),
		newWaitIdleCommand(opts),
		newVersionCommand(opts),
	)

	return cmd
}

func (o *rootOptions) setup(cmd *cobra.Command, _ []string) error {
	if err := validator.New().Var(o.output, "output_format"); err != nil {
		return fmt.Errorf("unsupported output format %q", o.output)
	}

	if cmd.Annotations[skipConfigAnnotation] == "true" {
		return nil
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	output, closeOutput, err := logger.OpenOutput(cfg.Logging.Output)
	if err != nil {
		return fmt.Errorf("open log output %s: %w", cfg.Logging.Output, err)
	}

	o.cfg = cfg
	o.closeOutput = closeOutput
	o.logger = logger.Setup(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: output,
	}).With("app", cfg.App.Name)

	return nil
}

func (o *rootOptions) teardown(*cobra.Command, []string) error {
	if o.closeOutput == nil {
		return nil
	}
	return o.closeOutput()
}

func (o *rootOptions) printer(cmd *cobra.Command) printer {
	return printer{format: o.output, w: cmd.OutOrStdout()}
}

// withContainer builds the dependency container for one command and closes
// it afterwards.
func (o *rootOptions) withContainer(ctx context.Context, fn func(ctx context.Context, c *dependencies.Container) error) error {
	initCtx, cancel := context.WithTimeout(ctx, constants.StartupTimeout)
	c, err := dependencies.NewContainer(initCtx, o.cfg, o.logger)
	cancel()
	if err != nil {
		return err
	}

	defer func() {
		if err := c.Close(); err != nil {
			o.logger.Error("failed to close dependencies", "error", err)
		}
	}()

	return fn(ctx, c)
}

// startServer runs the status server when enabled and returns its shutdown func.
func (o *rootOptions) startServer(c *dependencies.Container) func() {
	if !c.Config.Server.Enabled {
		return func() {}
	}

	srv := server.New(&server.Config{
		Host:    c.Config.Server.Host,
		Port:    c.Config.Server.Port,
		Version: o.version,
	}, c)

	go func() {
		if err := srv.Start(); err != nil {
			o.logger.Error("status server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			o.logger.Error("status server shutdown failed", "error", err)
		}
	}
}

// logout closes the console session even when ctx is already cancelled.
func logout(ctx context.Context, c *dependencies.Container) {
	if !c.Console.LoggedIn() {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.LogoutTimeout)
	defer cancel()

	if err := c.Console.Logout(ctx); err != nil {
		c.Logger.Warn("failed to log out of console", "error", err)
	}
}

// interrupted treats a signal-driven cancellation as a clean exit.
func interrupted(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
