package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/emission"
)

var (
	emitOutput string
	emitResume bool
)

var emitCmd = &cobra.Command{
	Use:   "emit <draft.json | access-key>",
	Short: "Build, sign, transmit and poll until SEFAZ decides",
	Long: `Run the full emission of a draft for the given company: build the XML,
sign it with the company's A1 certificate, submit the batch and poll for the
verdict. The emission record is kept in the configured storage, so running
the command again for an authorized key returns the stored result.

Interrupting the command leaves a submitted batch pending; use --resume with
the access key to poll it again.

Exit status is non-zero when the invoice is not authorized.

Examples:
  nfe-emitter emit draft.json --company desdobra -o procNFe.xml
  nfe-emitter emit 35231012345678000195550010000000011123456786 --company desdobra --resume`,
	Args: cobra.ExactArgs(1),
	RunE: runEmit,
}

func init() {
	rootCmd.AddCommand(emitCmd)

	emitCmd.Flags().StringVarP(&emitOutput, "output", "o", "", "Write the authorized nfeProc XML to this file")
	emitCmd.Flags().BoolVar(&emitResume, "resume", false, "Re-poll a pending batch by access key")
}

func runEmit(cmd *cobra.Command, args []string) error {
	if err := requireCompany(); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	var res *emission.Result
	if emitResume {
		res, err = a.orchestrator.Resume(ctx, companyID, args[0])
	} else {
		d, derr := readDraft(args[0])
		if derr != nil {
			return derr
		}
		res, err = a.orchestrator.Emit(ctx, companyID, d)
	}
	if err != nil {
		printIssues(cmd, err)
		return err
	}

	if err := printResult(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if res.Success && emitOutput != "" {
		if err := os.WriteFile(emitOutput, res.AuthorizedXML, 0o644); err != nil {
			return fmt.Errorf("writing nfeProc: %w", err)
		}
	}
	if !res.Success {
		return fmt.Errorf("invoice %s: %s %s", res.Status, res.StatusCode, res.Reason)
	}
	return nil
}

func printResult(w io.Writer, res *emission.Result) error {
	if outputFormat == "json" {
		out := map[string]interface{}{
			"success":    res.Success,
			"status":     res.Status,
			"statusCode": res.StatusCode,
			"reason":     res.Reason,
			"protocol":   res.Protocol,
			"log":        res.Log,
		}
		if res.Record != nil {
			out["accessKey"] = res.Record.AccessKey
		}
		return printJSON(w, out)
	}

	if res.Record != nil {
		fmt.Fprintf(w, "Access key: %s\n", res.Record.AccessKey)
	}
	fmt.Fprintf(w, "Status:     %s\n", res.Status)
	if res.StatusCode != "" {
		fmt.Fprintf(w, "cStat:      %s %s\n", res.StatusCode, res.Reason)
	}
	if res.Protocol != "" {
		fmt.Fprintf(w, "Protocol:   %s\n", res.Protocol)
	}
	if verbose {
		for _, line := range res.Log {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	return nil
}
