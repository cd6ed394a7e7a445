package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/nfexml"
)

var (
	buildOutput        string
	buildTransmissible bool
)

var buildCmd = &cobra.Command{
	Use:   "build <draft.json>",
	Short: "Render the NF-e XML of a JSON draft",
	Long: `Validate a JSON draft, compute its totals and render the unsigned NF-e XML.

In draft mode (the default) a missing access key is allowed and the
placeholder Id "NFe" + 44 zeros is used. With --transmissible the draft
must carry its 44-digit access key.

Validation issues are printed one per line and the command fails.

Examples:
  nfe-emitter build draft.json
  nfe-emitter build draft.json --transmissible -o nfe.xml
  cat draft.json | nfe-emitter build -`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "Write the XML to a file instead of stdout")
	buildCmd.Flags().BoolVar(&buildTransmissible, "transmissible", false, "Require an access key")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := readDraft(args[0])
	if err != nil {
		return err
	}

	mode := nfexml.ModeDraft
	if buildTransmissible {
		mode = nfexml.ModeTransmissible
	}
	doc, err := nfexml.Build(d,
		nfexml.WithMode(mode),
		nfexml.WithTimezoneOffset(cfg.Sefaz.TimezoneOffset),
		nfexml.WithAppVersion(cfg.Sefaz.AppVersion))
	if err != nil {
		printIssues(cmd, err)
		return err
	}

	if outputFormat == "json" && buildOutput == "" {
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"id":        doc.ID,
			"accessKey": doc.AccessKey,
			"mode":      doc.Mode.String(),
			"totals":    doc.Totals,
			"xml":       string(doc.XML),
		})
	}
	return writeOutput(cmd.OutOrStdout(), buildOutput, doc.XML)
}

func readDraft(path string) (*draft.Draft, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, fmt.Errorf("reading draft: %w", err)
	}
	var d draft.Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing draft: %w", err)
	}
	return &d, nil
}

func printIssues(cmd *cobra.Command, err error) {
	var be *draft.BuildError
	if !errors.As(err, &be) {
		return
	}
	for _, issue := range be.Issues {
		fmt.Fprintf(cmd.ErrOrStderr(), "  - [%s] %s\n", issue.Code, issue)
	}
}
