// Package cmd implements the nfe-emitter command line.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/config"
)

var (
	version = "1.0.0"

	// Global flags
	configPath   string
	companyID    string
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "nfe-emitter",
	Short: "Issue Brazilian NF-e invoices through SEFAZ",
	Long: `nfe-emitter builds, signs and transmits NF-e (modelo 55) invoices to the
SEFAZ authorization web services and keeps the audit trail of every emission.

Offline commands:
  build   Render the NF-e XML of a JSON draft
  sign    Sign an NF-e or event XML with a PKCS#12 certificate

Online commands (need a configuration file):
  emit    Build, sign, transmit and poll until SEFAZ decides
  status  Ask whether the authorizer is in operation
  query   Look up the protocol of an access key
  cancel  Send a cancellation event for an authorized invoice
  serve   Run the HTTP API and the reconciler

Examples:
  nfe-emitter build draft.json -o nfe.xml
  nfe-emitter emit draft.json --config emitter.yaml --company desdobra
  nfe-emitter query 35231012345678000195550010000000011123456786 --company desdobra`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (env: NFE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&companyID, "company", "", "Company id whose certificate is used (env: NFE_COMPANY)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "text", "Output format (text, json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if configPath == "" {
		configPath = os.Getenv("NFE_CONFIG")
	}
	if companyID == "" {
		companyID = os.Getenv("NFE_COMPANY")
	}
}

// loadConfig reads the configuration file, or the in-memory defaults when
// none is given
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func newLogger(cfg *config.Config) *slog.Logger {
	lc := cfg.Logging
	if verbose {
		lc.Level = "debug"
	}
	return lc.NewLogger(os.Stderr)
}

func requireCompany() error {
	if companyID == "" {
		return fmt.Errorf("--company is required")
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeOutput writes data to path, or to w when path is empty or "-"
func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := w.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
