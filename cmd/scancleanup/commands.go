package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"ScanCleanup/internal/cleanup/domain"
	"ScanCleanup/internal/cleanup/queue"
	"ScanCleanup/internal/dependencies"
	"ScanCleanup/internal/services"
	"ScanCleanup/pkg/uuidutil"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	var skipProbe bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resume paused scans until no active or paused scans remain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *dependencies.Container) error {
				stopServer := opts.startServer(c)
				defer stopServer()

				if c.Config.Probe.Enabled && !skipProbe {
					if _, err := c.Waiter.Wait(ctx); err != nil {
						return interrupted(err)
					}
				}

				summary, err := runOnce(ctx, c)
				if summary != nil {
					if perr := printRunSummary(opts.printer(cmd), summary); perr != nil {
						return perr
					}
				}
				return interrupted(err)
			})
		},
	}

	cmd.Flags().BoolVar(&skipProbe, "skip-probe", false, "Do not wait for the console login page before starting")
	return cmd
}

func runOnce(ctx context.Context, c *dependencies.Container) (*domain.RunSummary, error) {
	defer logout(ctx, c)
	return c.Loop.Run(ctx)
}

func printRunSummary(p printer, summary *domain.RunSummary) error {
	return p.print(summary, func(t *tableWriter) {
		t.Header("RUN", "CYCLES", "RESUMED", "FAILED", "DRAINED", "STARTED", "ENDED")
		t.AddRow(
			summary.RunID,
			strconv.Itoa(summary.Cycles),
			strconv.Itoa(summary.Resumed),
			strconv.Itoa(summary.Failed),
			boolToStr(summary.Drained),
			shortTime(summary.StartedAt),
			shortTime(summary.EndedAt),
		)
	})
}

func newScheduleCommand(opts *rootOptions) *cobra.Command {
	var spec string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Start a cleanup run on a cron schedule",
		Long: `Start a cleanup run on every tick of a standard five-field cron expression.
A tick is skipped while the previous run is still going.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if spec == "" {
				spec = opts.cfg.Schedule.Cron
			}
			if spec == "" {
				return errors.New("no cron expression configured, set schedule.cron or --cron")
			}
			schedule, err := cron.ParseStandard(spec)
			if err != nil {
				return fmt.Errorf("invalid cron expression %q: %w", spec, err)
			}

			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *dependencies.Container) error {
				stopServer := opts.startServer(c)
				defer stopServer()

				return runScheduled(ctx, c, spec, schedule)
			})
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "", "Cron expression, overrides schedule.cron")
	return cmd
}

// runScheduled blocks until ctx is cancelled and the current run, if any,
// has returned.
func runScheduled(ctx context.Context, c *dependencies.Container, spec string, schedule cron.Schedule) error {
	log := c.Logger.With("component", "scheduler")
	cronLog := cronLogger{log}

	scheduler := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	scheduler.Schedule(schedule, cron.FuncJob(func() {
		summary, err := runOnce(ctx, c)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("scheduled cleanup run failed", "error", err)
			return
		}
		if summary != nil {
			log.Info("scheduled cleanup run finished",
				"run_id", summary.RunID,
				"cycles", summary.Cycles,
				"resumed", summary.Resumed,
				"drained", summary.Drained,
			)
		}
	}))

	scheduler.Start()
	log.Info("cleanup runs scheduled", "cron", spec, "next_run", schedule.Next(time.Now()))

	<-ctx.Done()
	log.Info("stopping scheduler")
	<-scheduler.Stop().Done()
	return nil
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the latest cycle report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *dependencies.Container) error {
				latest, err := c.Reports.Latest(ctx)
				if err != nil {
					return fmt.Errorf("read latest cycle report: %w", err)
				}
				if latest == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "No cycle report recorded.")
					return nil
				}
				return printReports(opts.printer(cmd), latest, []*domain.CycleReport{latest})
			})
		},
	}
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent cycle reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID != "" && !uuidutil.IsValid(runID) {
				return fmt.Errorf("run id %q is not a UUID", runID)
			}
			if limit < 1 {
				return errors.New("--limit must be positive")
			}

			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *dependencies.Container) error {
				var (
					reports []*domain.CycleReport
					err     error
				)
				if runID != "" {
					reports, err = c.Reports.RunHistory(ctx, runID)
				} else {
					reports, err = c.Reports.History(ctx, limit)
				}
				if errors.Is(err, services.ErrHistoryUnavailable) {
					return fmt.Errorf("%w, enable the database section", err)
				}
				if err != nil {
					return fmt.Errorf("read cycle history: %w", err)
				}
				if len(reports) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No cycle report recorded.")
					return nil
				}
				return printReports(opts.printer(cmd), reports, reports)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of reports to show")
	cmd.Flags().StringVar(&runID, "run-id", "", "Show every cycle of one run")
	return cmd
}

func printReports(p printer, v any, reports []*domain.CycleReport) error {
	return p.print(v, func(t *tableWriter) {
		t.Header("RUN", "CYCLE", "TIME", "ACTIVE", "PAUSED", "SLOTS", "RESUMED", "FAILED", "EXPECTED HOSTS", "DRAINED")
		for _, r := range reports {
			t.AddRow(
				r.RunID,
				strconv.Itoa(r.Cycle),
				shortTime(r.Timestamp),
				strconv.Itoa(r.ActiveCount),
				strconv.Itoa(r.PausedCount),
				strconv.Itoa(r.Slots),
				joinIDs(r.ResumedIDs),
				joinIDs(r.FailedIDs),
				strconv.Itoa(r.ExpectedHosts),
				boolToStr(r.Drained),
			)
		}
	})
}

// scanListing is the scans command output: the running scans and the paused
// ones in the order the cleanup loop would resume them.
type scanListing struct {
	Active []scanRow `json:"active" yaml:"active"`
	Paused []scanRow `json:"paused" yaml:"paused"`
	Slots  int       `json:"slots" yaml:"slots"`
}

type scanRow struct {
	domain.ScanRecord `yaml:",inline"`
	SiteName          string `json:"site_name,omitempty" yaml:"site_name,omitempty"`
}

func newScansCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scans",
		Short: "List active and paused scans in resume order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *dependencies.Container) error {
				if err := c.Console.Login(ctx); err != nil {
					return err
				}
				defer logout(ctx, c)

				active, paused, err := c.Console.ScanQueue(ctx)
				if err != nil {
					return err
				}

				listing := scanListing{
					Slots: queue.SlotsAvailableWithHeadroom(len(active), c.Config.Cleanup.QueueCeiling, c.Config.Cleanup.Headroom),
				}
				for _, scan := range active {
					listing.Active = append(listing.Active, scanRow{scan, c.Sites.Lookup(ctx, scan.SiteID).Name})
				}
				for _, scan := range queue.Prioritize(paused) {
					listing.Paused = append(listing.Paused, scanRow{scan, c.Sites.Lookup(ctx, scan.SiteID).Name})
				}

				return opts.printer(cmd).print(listing, func(t *tableWriter) {
					t.Header("ID", "STATUS", "SITE", "ENGINE", "ASSETS", "STARTED")
					for _, rows := range [][]scanRow{listing.Active, listing.Paused} {
						for _, row := range rows {
							t.AddRow(
								strconv.FormatInt(row.ID, 10),
								string(row.Status),
								orDash(row.SiteName),
								strconv.FormatInt(row.EngineID, 10),
								strconv.Itoa(row.DiscoveredAssets),
								shortTime(row.StartTime),
							)
						}
					}
					t.Line("\n%d slot(s) available below a ceiling of %d", listing.Slots, c.Config.Cleanup.QueueCeiling)
				})
			})
		},
	}
}

func newStopPausedCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop-paused",
		Short: "Stop every paused scan until none is left",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *dependencies.Container) error {
				defer logout(ctx, c)

				summary, err := c.Stopper.StopPaused(ctx)
				if summary != nil {
					if perr := printStopSummary(opts.printer(cmd), summary); perr != nil {
						return perr
					}
				}
				return interrupted(err)
			})
		},
	}
}

func newStopEngineCommand(opts *rootOptions) *cobra.Command {
	var engineID int64

	cmd := &cobra.Command{
		Use:   "stop-engine",
		Short: "Stop every scan running on one scan engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			if engineID <= 0 {
				return errors.New("--engine-id must be a positive engine id")
			}

			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *dependencies.Container) error {
				defer logout(ctx, c)

				summary, err := c.Stopper.StopEngine(ctx, engineID)
				if summary != nil {
					if perr := printStopSummary(opts.printer(cmd), summary); perr != nil {
						return perr
					}
				}
				return interrupted(err)
			})
		},
	}

	cmd.Flags().Int64Var(&engineID, "engine-id", 0, "Scan engine id")
	_ = cmd.MarkFlagRequired("engine-id")
	return cmd
}

func printStopSummary(p printer, summary *domain.StopSummary) error {
	return p.print(summary, func(t *tableWriter) {
		t.Header("PASSES", "STOPPED", "FAILED")
		t.AddRow(strconv.Itoa(summary.Passes), joinIDs(summary.StoppedID), joinIDs(summary.FailedID))
	})
}

type waitResult struct {
	Checks   any  `json:"checks" yaml:"checks"`
	Attempts int  `json:"attempts" yaml:"attempts"`
	Ready    bool `json:"ready" yaml:"ready"`
}

func newWaitServiceCommand(opts *rootOptions) *cobra.Command {
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "wait-service",
		Short: "Wait until the console login page answers",
		Long: `Run the DNS, TCP and HTTP preflight checks once, then poll the console
login page until it answers 200 or probe.attempts is used up.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *dependencies.Container) error {
				result := waitResult{}

				if !skipPreflight {
					checks, err := c.Preflight.Run(ctx)
					if err != nil {
						c.Logger.Warn("preflight checks failed, waiting anyway", "error", err)
					}
					result.Checks = checks

					if opts.output == outputTable {
						t := newTable(cmd.OutOrStdout())
						t.Header("PROBE", "TARGET", "RESULT", "ERROR")
						for _, check := range checks {
							t.AddRow(string(check.Probe), check.Target, successStr(check.OK), orDash(check.Error))
						}
						if err := t.Flush(); err != nil {
							return err
						}
					}
				}

				attempts, err := c.Waiter.Wait(ctx)
				result.Attempts = attempts
				result.Ready = err == nil

				if opts.output != outputTable {
					if perr := opts.printer(cmd).print(result, nil); perr != nil {
						return perr
					}
				} else if err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "\nConsole is up after %d attempt(s).\n", attempts)
				}
				return interrupted(err)
			})
		},
	}

	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Only poll the login page")
	return cmd
}

func newWaitIdleCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "wait-idle",
		Short: "Wait until the console has no active scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *dependencies.Container) error {
				defer logout(ctx, c)

				if err := c.Idle.WaitIdle(ctx); err != nil {
					return interrupted(err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "No active scans.")
				return nil
			})
		},
	}
}

func newVersionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show version",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "scancleanup version %s\n", opts.version)
			fmt.Fprintf(out, "  Go:       %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
