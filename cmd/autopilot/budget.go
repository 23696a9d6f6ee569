package main

import (
	"fmt"

	"github.com/jonathan/seo-autopilot/internal/notify"
	"github.com/jonathan/seo-autopilot/internal/observability"
	"github.com/jonathan/seo-autopilot/internal/types"
	"github.com/spf13/cobra"
)

var (
	logsLimit    int
	logsStatus   string
	logsSchedule string
	budgetJSON   bool
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show spend against the daily and monthly budgets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		usage, err := a.guard(notify.Nop{}).Usage(cmd.Context())
		if err != nil {
			return err
		}
		printer := observability.NewPrinter(cmd.OutOrStdout(), a.location())
		return emitResult(cmd.OutOrStdout(), budgetJSON, usage, func() { printer.PrintBudgetUsage(usage) })
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the generation log, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		filter, err := logFilter(logsLimit, logsStatus)
		if err != nil {
			return classify(err)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if logsSchedule != "" {
			s, err := resolveSchedule(ctx, a.engine(), logsSchedule)
			if err != nil {
				return classify(err)
			}
			filter.ScheduleID = &s.ID
		}

		logs, err := a.store.ListLogs(ctx, filter)
		if err != nil {
			return err
		}
		observability.NewPrinter(cmd.OutOrStdout(), a.location()).PrintLogs(logs)
		return nil
	},
}

func logFilter(limit int, status string) (types.LogFilter, error) {
	if limit <= 0 {
		return types.LogFilter{}, &types.ValidationError{Field: "limit", Message: "must be a positive integer"}
	}
	switch s := types.LogStatus(status); s {
	case "", types.LogSuccess, types.LogFailed:
		return types.LogFilter{Status: s, Limit: limit}, nil
	default:
		return types.LogFilter{}, &types.ValidationError{Field: "status", Message: fmt.Sprintf("must be one of [success failed], got %q", status)}
	}
}

func init() {
	budgetCmd.Flags().BoolVar(&budgetJSON, "json", false, "Print usage as JSON")

	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 20, "Maximum entries")
	logsCmd.Flags().StringVar(&logsStatus, "status", "", "Only success or failed entries")
	logsCmd.Flags().StringVar(&logsSchedule, "schedule", "", "Only entries of this schedule (name or id)")

	rootCmd.AddCommand(budgetCmd, logsCmd)
}
