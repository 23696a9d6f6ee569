package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/seo-autopilot/internal/types"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-or-batch-id>",
	Short: "Ask a running job or batch to stop",
	Long: `Set the cancel flag for a job or batch. The run stops before its next job.
Cancelling a run in another process needs REDIS_URL.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRunID(args[0])
		if err != nil {
			return classify(err)
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if a.redis == nil {
			a.logger.Warn().Msg("REDIS_URL not set, the cancel flag is only visible to this process")
		}
		if err := a.cancels().Cancel(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cancel requested for %s\n", id)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <job-or-batch-id>",
	Short: "Show the latest progress of a job or batch",
	Long:  `Read the latest progress snapshot recorded in Redis by any autopilot process.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRunID(args[0])
		if err != nil {
			return classify(err)
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		snaps := a.snapshots()
		if snaps == nil {
			return fmt.Errorf("status needs REDIS_URL: progress is only shared through Redis")
		}
		event, ok, err := snaps.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no progress recorded for %s", id)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(event)
	},
}

func parseRunID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", &types.ValidationError{Field: "id", Message: "must be a UUID"}
	}
	return id.String(), nil
}

func init() {
	rootCmd.AddCommand(cancelCmd, statusCmd)
}
