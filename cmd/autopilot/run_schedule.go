package main

import (
	"github.com/google/uuid"
	"github.com/jonathan/seo-autopilot/internal/observability"
	"github.com/jonathan/seo-autopilot/internal/orchestrator"
	"github.com/jonathan/seo-autopilot/internal/types"
	"github.com/spf13/cobra"
)

var (
	runScheduleJSON  bool
	runScheduleQuiet bool
)

var runScheduleCmd = &cobra.Command{
	Use:   "run-schedule <name|id>",
	Short: "Run one batch of a schedule now",
	Long: `Run a schedule's batch immediately. The schedule's next run is not moved,
and paused schedules can be run this way too.`,
	Args: cobra.ExactArgs(1),
	RunE: runRunSchedule,
}

func init() {
	runScheduleCmd.Flags().BoolVar(&runScheduleJSON, "json", false, "Print the result as JSON")
	runScheduleCmd.Flags().BoolVarP(&runScheduleQuiet, "quiet", "q", false, "Do not print progress")
	rootCmd.AddCommand(runScheduleCmd)
}

func runRunSchedule(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := resolveSchedule(ctx, a.engine(), args[0])
	if err != nil {
		return classify(err)
	}

	n := a.notifier()
	orch, closeOrch, err := a.orchestrator(ctx, a.guard(n), n)
	if err != nil {
		return err
	}
	defer closeOrch()

	req := orchestrator.BatchForSchedule(s)
	req.BatchID = uuid.New()
	req.Origin = types.OriginCLI
	announce(cmd.ErrOrStderr(), "batch", req.BatchID, runScheduleQuiet)

	result, err := orch.RunBatch(ctx, req, a.cliEmitter(cmd.ErrOrStderr(), runScheduleQuiet || runScheduleJSON))
	if err != nil {
		return classify(err)
	}

	printer := observability.NewPrinter(cmd.OutOrStdout(), a.location())
	if err := emitResult(cmd.OutOrStdout(), runScheduleJSON, result, func() { printer.PrintBatchResult(result) }); err != nil {
		return err
	}
	return withExitCode(result.ExitCode(), nil)
}
