package main

import (
	"fmt"
	"time"

	"github.com/jonathan/seo-autopilot/internal/config"
	"github.com/jonathan/seo-autopilot/internal/server"
	"github.com/spf13/cobra"
)

var tokenSubject string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the admin API",
	Long: `Sign an operator token with JWT_SECRET. The subject is recorded in the
server log for every job the token starts.`,
	Example: `  curl -H "Authorization: Bearer $(autopilot token --subject ops)" localhost:8080/budget`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		jwtCfg, err := cfg.JWT()
		if err != nil {
			return err
		}

		token, expires, err := server.NewTokenService(jwtCfg).GenerateToken(tokenSubject)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Operator name carried in the token")
	_ = tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}
