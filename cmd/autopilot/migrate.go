package main

import (
	"fmt"

	"github.com/jonathan/seo-autopilot/internal/config"
	"github.com/jonathan/seo-autopilot/internal/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required to migrate")
		}

		applied, err := db.Migrate(cmd.Context(), cfg.Database.URL)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date")
			return nil
		}
		for _, v := range applied {
			fmt.Fprintf(cmd.OutOrStdout(), "Applied migration %05d\n", v)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
