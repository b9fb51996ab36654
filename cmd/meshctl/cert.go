package main

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucas/overmesh/internal/pki"
)

func certCmd() *cobra.Command {
	baseCmd := &cobra.Command{
		Use:   "cert",
		Short: "Manage PKI and certificates",
		Long:  `Utilities for generating the internal CA and per-node host certificates used for mTLS.`,
	}

	baseCmd.AddCommand(certGenerateCmd())

	return baseCmd
}

func certGenerateCmd() *cobra.Command {
	var outputDir, host string
	var ips []string
	var days int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Issue a node certificate bundle, generating a CA first if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			if host == "" {
				h, err := os.Hostname()
				if err != nil {
					return fmt.Errorf("hostname is required")
				}
				host = h
			}

			var parsedIPs []net.IP
			for _, raw := range ips {
				parsed := net.ParseIP(raw)
				if parsed == nil {
					return fmt.Errorf("invalid IP address: %s", raw)
				}
				parsedIPs = append(parsedIPs, parsed)
			}

			fmt.Printf("🔐 Issuing certificate bundle for '%s' in '%s'...\n", host, outputDir)
			bundle, err := pki.IssueNodeBundle(outputDir, host, parsedIPs, days)
			if err != nil {
				return err
			}

			fmt.Println("✅ Certificate bundle issued!")
			fmt.Printf("   certChain:  %s\n", bundle.CertChain)
			fmt.Printf("   privateKey: %s\n", bundle.PrivateKey)
			fmt.Printf("   caBundle:   %s\n", bundle.CABundle)
			fmt.Println("\nUse these paths to populate tlsConfig in your meshd.yaml.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "Directory to save the CA and host certificates")
	cmd.Flags().StringVar(&host, "host", "", "Mesh name for the certificate (defaults to system hostname)")
	cmd.Flags().StringSliceVar(&ips, "ip", nil, "Additional IP SANs (comma separated)")
	cmd.Flags().IntVar(&days, "days", 365, "Validity duration in days")

	return cmd
}
