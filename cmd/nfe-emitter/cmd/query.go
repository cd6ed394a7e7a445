package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var queryEnvironment string

var queryCmd = &cobra.Command{
	Use:   "query <access-key>",
	Short: "Look up the protocol of an access key",
	Long: `Call NFeConsultaProtocolo4 for an access key. The authorizer is taken from
the state code in the key.

Examples:
  nfe-emitter query 35231012345678000195550010000000011123456786 --company desdobra`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVar(&queryEnvironment, "environment", "", "production or homologation (default from configuration)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	if err := requireCompany(); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	env, err := environmentFlag(queryEnvironment, cfg.Environment())
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())

	res, err := a.orchestrator.QueryProtocol(cmd.Context(), companyID, args[0], env)
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(cmd.OutOrStdout(), res)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Access key: %s\n", args[0])
	fmt.Fprintf(w, "cStat:      %s %s\n", res.Status, res.Reason)
	if p := res.Protocol; p != nil {
		fmt.Fprintf(w, "Protocol:   %s (%s %s)\n", p.Number, p.Status, p.Reason)
	}
	for _, ev := range res.Events {
		fmt.Fprintf(w, "Event:      %s #%d %s %s\n", ev.Type, ev.Sequence, ev.Status, ev.Protocol)
	}
	return nil
}
