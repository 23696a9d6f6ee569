package main

import (
	"fmt"
	"time"

	"github.com/jonathan/seo-autopilot/internal/observability"
	"github.com/jonathan/seo-autopilot/internal/runner"
	"github.com/jonathan/seo-autopilot/internal/types"
	"github.com/spf13/cobra"
)

var tickAt string

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Evaluate due schedules once and run their batches",
	Long: `Run a single scheduler tick, for driving autopilot from an external cron
instead of 'serve'. Every schedule due at the tick time runs in next-run order.`,
	Args: cobra.NoArgs,
	RunE: runTick,
}

func init() {
	tickCmd.Flags().StringVar(&tickAt, "at", "", "Tick time as RFC 3339 (default now)")
	rootCmd.AddCommand(tickCmd)
}

func parseTickTime(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &types.ValidationError{Field: "at", Message: fmt.Sprintf("must be RFC 3339, got %q", raw)}
	}
	return t, nil
}

// worstExitCode returns the highest exit code among the results.
func worstExitCode(results []*types.BatchResult) int {
	code := types.ExitOK
	for _, r := range results {
		code = max(code, r.ExitCode())
	}
	return code
}

func runTick(cmd *cobra.Command, _ []string) error {
	at, err := parseTickTime(tickAt, time.Now())
	if err != nil {
		return classify(err)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n := a.notifier()
	orch, closeOrch, err := a.orchestrator(ctx, a.guard(n), n)
	if err != nil {
		return err
	}
	defer closeOrch()

	opts := []runner.Option{runner.WithNotifier(n), runner.WithLogger(a.logger)}
	if snaps := a.snapshots(); snaps != nil {
		opts = append(opts, runner.WithEmitter(snaps))
	}
	run, err := runner.New(a.engine(), orch, a.cfg.Schedule.TickSpec, opts...)
	if err != nil {
		return err
	}

	results, err := run.OnTimerTick(ctx, at)
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(cmd.OutOrStdout(), a.location())
	if len(results) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No schedules due at %s\n", at.In(a.location()).Format(time.RFC3339))
		return nil
	}
	for _, r := range results {
		printer.PrintBatchResult(r)
	}
	return withExitCode(worstExitCode(results), nil)
}
