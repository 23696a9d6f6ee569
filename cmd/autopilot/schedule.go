package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jonathan/seo-autopilot/internal/observability"
	"github.com/jonathan/seo-autopilot/internal/schedule"
	"github.com/jonathan/seo-autopilot/internal/types"
	"github.com/spf13/cobra"
)

var scheduleApplyFile string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage generation schedules",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules with their next and last runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		schedules, err := a.engine().List(cmd.Context())
		if err != nil {
			return err
		}
		observability.NewPrinter(cmd.OutOrStdout(), a.location()).PrintSchedules(schedules)
		return nil
	},
}

var scheduleApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create or update schedules from a YAML file",
	Long: `Create or update every schedule in the file, matched by name. A schedule
without a status keeps its current one.`,
	Example: `  autopilot schedule apply -f schedules.yaml`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := applySchedules(cmd.Context(), a.engine(), scheduleApplyFile)
		if err != nil {
			return classify(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Applied %d schedule(s)\n", n)
		return nil
	},
}

// scheduleAction builds the pause, resume and delete commands.
func scheduleAction(use, short, done string, action func(ctx context.Context, e scheduleManager, id int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name|id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			engine := a.engine()
			s, err := resolveSchedule(ctx, engine, args[0])
			if err != nil {
				return classify(err)
			}
			if err := action(ctx, engine, s.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schedule %q %s\n", s.Name, done)
			return nil
		},
	}
}

type scheduleManager interface {
	Get(ctx context.Context, id int64) (*types.Schedule, error)
	GetByName(ctx context.Context, name string) (*types.Schedule, error)
	Pause(ctx context.Context, id int64) error
	Resume(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// resolveSchedule accepts a schedule name or numeric id. Names win, so a
// schedule literally named "7" is still reachable.
func resolveSchedule(ctx context.Context, engine scheduleManager, arg string) (*types.Schedule, error) {
	s, err := engine.GetByName(ctx, arg)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, schedule.ErrNotFound) {
		return nil, err
	}
	if id, perr := strconv.ParseInt(arg, 10, 64); perr == nil && id > 0 {
		s, err = engine.Get(ctx, id)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, schedule.ErrNotFound) {
			return nil, err
		}
	}
	return nil, &types.ValidationError{Field: "schedule", Message: fmt.Sprintf("no schedule %q", arg)}
}

func init() {
	scheduleApplyCmd.Flags().StringVarP(&scheduleApplyFile, "file", "f", "", "Schedule file (YAML or JSON)")
	_ = scheduleApplyCmd.MarkFlagRequired("file")

	scheduleCmd.AddCommand(
		scheduleListCmd,
		scheduleApplyCmd,
		scheduleAction("pause", "Pause a schedule", "paused", func(ctx context.Context, e scheduleManager, id int64) error {
			return e.Pause(ctx, id)
		}),
		scheduleAction("resume", "Resume a paused schedule", "resumed", func(ctx context.Context, e scheduleManager, id int64) error {
			return e.Resume(ctx, id)
		}),
		scheduleAction("delete", "Delete a schedule", "deleted", func(ctx context.Context, e scheduleManager, id int64) error {
			return e.Delete(ctx, id)
		}),
	)
	rootCmd.AddCommand(scheduleCmd)
}
