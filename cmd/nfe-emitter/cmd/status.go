package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
)

var (
	statusState       string
	statusEnvironment string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Ask whether the SEFAZ authorizer is in operation",
	Long: `Call NFeStatusServico4 for a state and environment using the company's
certificate. cStat 107 means the service is in operation.

Examples:
  nfe-emitter status --company desdobra
  nfe-emitter status --company desdobra --state MG --environment production`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusState, "state", "", "State code such as SP (default from configuration)")
	statusCmd.Flags().StringVar(&statusEnvironment, "environment", "", "production or homologation (default from configuration)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := requireCompany(); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	env, err := environmentFlag(statusEnvironment, cfg.Environment())
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())

	res, err := a.orchestrator.ServiceStatus(cmd.Context(), companyID, statusState, env)
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cStat:   %s %s\n", res.Status, res.Reason)
	fmt.Fprintf(cmd.OutOrStdout(), "Online:  %t\n", res.Available())
	if res.AverageTime > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "tMed:    %s\n", res.AverageTime)
	}
	if !res.Available() {
		return fmt.Errorf("service not in operation: %s", res.Status)
	}
	return nil
}

func environmentFlag(v string, def draft.Environment) (draft.Environment, error) {
	if v == "" {
		return def, nil
	}
	env, ok := draft.ParseEnvironment(v)
	if !ok {
		return "", fmt.Errorf("invalid environment %q", v)
	}
	return env, nil
}
