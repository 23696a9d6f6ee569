package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/seo-autopilot/internal/runner"
	"github.com/jonathan/seo-autopilot/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveKeywordsFile  string
	serveSchedulesFile string
	serveNoScheduler   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the admin API",
	Long: `Start the tick-driven scheduler and the HTTP admin API in one process.
Keyword and schedule files given with --keywords and --schedules are applied
before the first tick.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveKeywordsFile, "keywords", "", "Keyword file to import at start-up")
	serveCmd.Flags().StringVar(&serveSchedulesFile, "schedules", "", "Schedule file to apply at start-up")
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "Serve the API without firing schedules")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jwtCfg, err := a.cfg.JWT()
	if err != nil {
		return fmt.Errorf("admin API: %w", err)
	}

	n := a.notifier()
	guard := a.guard(n)
	orch, closeOrch, err := a.orchestrator(ctx, guard, n)
	if err != nil {
		return err
	}
	defer closeOrch()

	engine := a.engine()
	if err := seed(ctx, a, engine); err != nil {
		return err
	}

	srvOpts := []server.Option{
		server.WithLocation(a.location()),
		server.WithLogger(a.logger),
	}
	runOpts := []runner.Option{
		runner.WithNotifier(n),
		runner.WithLogger(a.logger),
	}
	if snaps := a.snapshots(); snaps != nil {
		srvOpts = append(srvOpts, server.WithSnapshots(snaps), server.WithEmitter(snaps))
		runOpts = append(runOpts, runner.WithEmitter(snaps))
	}

	srv, err := server.New(a.cfg.Server, server.Deps{
		Generator: orch,
		Schedules: engine,
		Store:     a.store,
		Budget:    guard,
		Tokens:    server.NewTokenService(jwtCfg),
	}, srvOpts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	run, err := runner.New(engine, orch, a.cfg.Schedule.TickSpec, runOpts...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	if serveNoScheduler {
		a.logger.Info().Msg("scheduler disabled, schedules fire only through run-schedule or tick")
	} else {
		g.Go(func() error { return run.Start(gctx) })
	}
	return g.Wait()
}

// seed applies the start-up keyword and schedule files.
func seed(ctx context.Context, a *app, engine scheduleUpserter) error {
	if serveKeywordsFile != "" {
		n, err := importKeywords(ctx, a.store, serveKeywordsFile)
		if err != nil {
			return classify(err)
		}
		a.logger.Info().Int("keywords", n).Str("file", serveKeywordsFile).Msg("keywords imported")
	}
	if serveSchedulesFile != "" {
		n, err := applySchedules(ctx, engine, serveSchedulesFile)
		if err != nil {
			return classify(err)
		}
		a.logger.Info().Int("schedules", n).Str("file", serveSchedulesFile).Msg("schedules applied")
	}
	return nil
}
