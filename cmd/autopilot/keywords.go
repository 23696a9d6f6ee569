package main

import (
	"fmt"
	"strconv"

	"github.com/jonathan/seo-autopilot/internal/observability"
	"github.com/jonathan/seo-autopilot/internal/types"
	"github.com/spf13/cobra"
)

var (
	keywordsImportFile  string
	keywordsListType    string
	keywordsListArchive bool
)

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Manage the keyword pool",
}

var keywordsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import keywords with their search metrics",
	Long: `Insert or refresh keywords from a YAML file. Existing keywords keep their
usage history and status; their priority score is recomputed.`,
	Example: `  autopilot keywords import -f keywords.yaml`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := importKeywords(cmd.Context(), a.store, keywordsImportFile)
		if err != nil {
			return classify(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d keyword(s)\n", n)
		return nil
	},
}

var keywordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keywords by priority",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		kind := types.KeywordType(keywordsListType)
		if kind != "" && !kind.Valid() {
			return classify(&types.ValidationError{Field: "type", Message: "must be one of [general promotional]"})
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		keywords, err := a.store.ListKeywords(cmd.Context(), kind, keywordsListArchive)
		if err != nil {
			return err
		}
		observability.NewPrinter(cmd.OutOrStdout(), a.location()).PrintKeywords(keywords)
		return nil
	},
}

var keywordsArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Remove a keyword from the eligible pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return classify(&types.ValidationError{Field: "id", Message: fmt.Sprintf("invalid id %q", args[0])})
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		ok, err := a.store.ArchiveKeyword(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !ok {
			return classify(&types.ValidationError{Field: "id", Message: fmt.Sprintf("no keyword %d", id)})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Keyword %d archived\n", id)
		return nil
	},
}

func init() {
	keywordsImportCmd.Flags().StringVarP(&keywordsImportFile, "file", "f", "", "Keyword file (YAML or JSON)")
	_ = keywordsImportCmd.MarkFlagRequired("file")

	keywordsListCmd.Flags().StringVarP(&keywordsListType, "type", "t", "", "Only general or promotional keywords")
	keywordsListCmd.Flags().BoolVar(&keywordsListArchive, "archived", false, "Include archived keywords")

	keywordsCmd.AddCommand(keywordsImportCmd, keywordsListCmd, keywordsArchiveCmd)
	rootCmd.AddCommand(keywordsCmd)
}
