package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jonathan/seo-autopilot/internal/observability"
	"github.com/jonathan/seo-autopilot/internal/orchestrator"
	"github.com/jonathan/seo-autopilot/internal/progress"
	"github.com/jonathan/seo-autopilot/internal/types"
	"github.com/spf13/cobra"
)

var (
	generateKeyword  string
	generateType     string
	generateCount    int
	generateMinWords int
	generateMaxWords int
	generateModel    string
	generateImages   int
	generateTone     string
	generateJSON     bool
	generateQuiet    bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate content now, outside any schedule",
	Long: `Generate one article, or a batch of --count articles, immediately.

Without --keyword a keyword of --type is drawn from the pool. The exit code is
0 when every job succeeded, 1 on partial failure, 2 when the budget stopped
the run and 3 for invalid input.`,
	Example: `  autopilot generate --keyword "cold brew ratio"
  autopilot generate --type promotional --count 3 --images 1`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&generateKeyword, "keyword", "k", "", "Explicit keyword (created in the pool if missing)")
	f.StringVarP(&generateType, "type", "t", "", "Keyword type: general, promotional (or mixed with --count)")
	f.IntVarP(&generateCount, "count", "n", 1, "Number of articles; more than 1 runs a batch")
	f.IntVar(&generateMinWords, "min-words", 0, "Minimum word count (default 800)")
	f.IntVar(&generateMaxWords, "max-words", 0, "Maximum word count (default 1500)")
	f.StringVar(&generateModel, "model", "", "Content model or tier")
	f.IntVar(&generateImages, "images", 0, "Illustrations per article (0-5)")
	f.StringVar(&generateTone, "tone", "", "Writing tone")
	f.BoolVar(&generateJSON, "json", false, "Print the result as JSON")
	f.BoolVarP(&generateQuiet, "quiet", "q", false, "Do not print progress")
	rootCmd.AddCommand(generateCmd)
}

func generateSettings() types.ContentSettings {
	return types.ContentSettings{
		MinWords:   generateMinWords,
		MaxWords:   generateMaxWords,
		Model:      generateModel,
		ImageCount: generateImages,
		Tone:       generateTone,
	}
}

// batchRequest builds the request for --count > 1. An explicit keyword is
// not allowed there since a batch draws from the pool.
func batchRequest() (orchestrator.BatchRequest, error) {
	if generateKeyword != "" {
		return orchestrator.BatchRequest{}, &types.ValidationError{Field: "keyword", Message: "cannot be combined with --count greater than 1"}
	}
	return orchestrator.BatchRequest{
		Affinity: types.Affinity(generateType),
		Count:    generateCount,
		Settings: generateSettings(),
		Origin:   types.OriginCLI,
	}, nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	if generateCount < 1 {
		return classify(&types.ValidationError{Field: "count", Message: "must be at least 1"})
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

	out := cmd.OutOrStdout()
	emitter := a.cliEmitter(cmd.ErrOrStderr(), generateQuiet || generateJSON)
	printer := observability.NewPrinter(out, a.location())

	if generateCount > 1 {
		req, err := batchRequest()
		if err != nil {
			return classify(err)
		}
		req.BatchID = uuid.New()
		announce(cmd.ErrOrStderr(), "batch", req.BatchID, generateQuiet)
		result, err := orch.RunBatch(ctx, req, emitter)
		if err != nil {
			return classify(err)
		}
		if err := emitResult(out, generateJSON, result, func() { printer.PrintBatchResult(result) }); err != nil {
			return err
		}
		return withExitCode(result.ExitCode(), nil)
	}

	jobID := uuid.New()
	announce(cmd.ErrOrStderr(), "job", jobID, generateQuiet)
	result, err := orch.RunOnDemand(ctx, orchestrator.OnDemandRequest{
		JobID:       jobID,
		Keyword:     generateKeyword,
		KeywordType: types.KeywordType(generateType),
		Settings:    generateSettings(),
		Origin:      types.OriginCLI,
	}, emitter)
	if err != nil {
		return classify(err)
	}
	if err := emitResult(out, generateJSON, result, func() { printer.PrintOnDemandResult(result) }); err != nil {
		return err
	}
	return withExitCode(result.ExitCode(), nil)
}

// emitResult prints v as indented JSON, or calls pretty.
func emitResult(w io.Writer, asJSON bool, v any, pretty func()) error {
	if !asJSON {
		pretty()
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func announce(w io.Writer, kind string, id uuid.UUID, quiet bool) {
	if !quiet {
		fmt.Fprintf(w, "%s %s (stop it with: autopilot cancel %s)\n", kind, id, id)
	}
}

// progressPrinter writes each progress event on its own line.
func progressPrinter(w io.Writer) progress.Emitter {
	return progress.EmitterFunc(func(e progress.Event) {
		if e.Done {
			fmt.Fprintf(w, "[%3d%%] %s (%s)\n", e.Percent, e.Message, e.Status)
			return
		}
		fmt.Fprintf(w, "[%3d%%] %-10s %s\n", e.Percent, e.Step, e.Message)
	})
}

// cliEmitter prints progress unless quiet and mirrors it to Redis when
// configured, so `autopilot status` and the API can follow a CLI run.
func (a *app) cliEmitter(w io.Writer, quiet bool) progress.Emitter {
	var m progress.Multi
	if !quiet {
		m = append(m, progressPrinter(w))
	}
	if snaps := a.snapshots(); snaps != nil {
		m = append(m, snaps)
	}
	if len(m) == 0 {
		return progress.Discard
	}
	return m
}
