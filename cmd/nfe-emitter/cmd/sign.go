package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/security"
)

var (
	signOutput      string
	signBundle      string
	signPasswordEnv string
	signEvent       bool
	signVerify      bool
)

var signCmd = &cobra.Command{
	Use:   "sign <nfe.xml>",
	Short: "Sign an NF-e or event XML with a PKCS#12 certificate",
	Long: `Apply an enveloped XML-DSig signature (RSA-SHA1, C14N) to infNFe, or to
infEvento with --event. The password is read from an environment variable so
it never appears in the process list.

Documents built in draft mode carry the placeholder Id and are refused.

Examples:
  NFE_CERT_PASSWORD=... nfe-emitter sign nfe.xml --pfx company.pfx -o signed.xml
  nfe-emitter sign signed.xml --verify`,
	Args: cobra.ExactArgs(1),
	RunE: runSign,
}

func init() {
	rootCmd.AddCommand(signCmd)

	signCmd.Flags().StringVarP(&signOutput, "output", "o", "", "Write the signed XML to a file instead of stdout")
	signCmd.Flags().StringVar(&signBundle, "pfx", "", "PKCS#12 certificate file")
	signCmd.Flags().StringVar(&signPasswordEnv, "password-env", "NFE_CERT_PASSWORD", "Environment variable holding the certificate password")
	signCmd.Flags().BoolVar(&signEvent, "event", false, "Sign infEvento instead of infNFe")
	signCmd.Flags().BoolVar(&signVerify, "verify", false, "Verify an existing signature instead of signing")
}

func runSign(cmd *cobra.Command, args []string) error {
	xml, err := readInput(args[0])
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	target := security.InvoiceTarget
	if signEvent {
		target = security.EventTarget
	}

	if signVerify {
		cert, err := security.Verify(xml, target)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "signature valid, signed by %s (serial %s)\n", cert.Subject.CommonName, cert.SerialNumber)
		return nil
	}

	if signBundle == "" {
		return fmt.Errorf("--pfx is required")
	}
	bundle, err := os.ReadFile(signBundle)
	if err != nil {
		return fmt.Errorf("reading certificate: %w", err)
	}
	signed, err := security.Sign(xml, security.Credentials{
		Bundle:   bundle,
		Password: os.Getenv(signPasswordEnv),
	}, target)
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), signOutput, signed.XML)
}
