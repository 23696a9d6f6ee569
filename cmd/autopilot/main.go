// Package main provides the entry point for the SEO autopilot scheduler, API server and operator CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/jonathan/seo-autopilot/internal/types"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "autopilot",
	Short: "SEO content scheduling and generation engine",
	Long: `autopilot keeps a keyword pool, fires recurring generation schedules,
produces articles through the content and image services, and keeps spend
inside the configured daily and monthly budgets.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (environment variables override it)")
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// withExitCode wraps err so main exits with code. A zero code returns err unchanged.
func withExitCode(code int, err error) error {
	if code == 0 {
		return err
	}
	return &exitError{code: code, err: err}
}

// classify gives validation failures the validation exit code.
func classify(err error) error {
	if types.IsValidationError(err) {
		return withExitCode(types.ExitValidation, err)
	}
	return err
}

// exitCode returns the process exit code for an error returned by a command.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return types.ExitPartial
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	err := rootCmd.Execute()
	var ee *exitError
	if err != nil && !(errors.As(err, &ee) && ee.err == nil) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}
