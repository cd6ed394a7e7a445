package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/emission"
)

var (
	cancelReason   string
	cancelSequence int
	cancelOutput   string
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <access-key>",
	Short: "Send a cancellation event for an authorized invoice",
	Long: `Build, sign and send a cancellation event (tpEvento 110111) for an invoice
authorized through this emitter. The justification must have between 15 and
255 characters.

Examples:
  nfe-emitter cancel 35231012345678000195550010000000011123456786 --company desdobra \
    --reason "Pedido cancelado pelo cliente" -o procEventoNFe.xml`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)

	cancelCmd.Flags().StringVar(&cancelReason, "reason", "", "Justification (xJust)")
	cancelCmd.Flags().IntVar(&cancelSequence, "sequence", 1, "Event sequence number")
	cancelCmd.Flags().StringVarP(&cancelOutput, "output", "o", "", "Write the procEventoNFe XML to this file")
	_ = cancelCmd.MarkFlagRequired("reason")
}

func runCancel(cmd *cobra.Command, args []string) error {
	if err := requireCompany(); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())

	res, err := a.orchestrator.Cancel(cmd.Context(), emission.CancelRequest{
		CompanyID: companyID,
		AccessKey: args[0],
		Reason:    cancelReason,
		Sequence:  cancelSequence,
	})
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		if err := printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"accepted":   res.Accepted,
			"statusCode": res.StatusCode,
			"reason":     res.Reason,
			"protocol":   res.Protocol,
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "cStat:    %s %s\n", res.StatusCode, res.Reason)
		if res.Protocol != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Protocol: %s\n", res.Protocol)
		}
	}

	if !res.Accepted {
		return fmt.Errorf("cancellation refused: %s %s", res.StatusCode, res.Reason)
	}
	if cancelOutput != "" {
		return os.WriteFile(cancelOutput, res.XML, 0o644)
	}
	return nil
}
