// meshctl is the command line interface for overmesh.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucas/overmesh/internal/config"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	configPath string
	serverAddr string
	token      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "meshctl",
		Short: "meshctl - Manage an overmesh control plane",
		Long: `meshctl is the command line interface for overmesh.
It talks to a running meshd daemon's admin RPC surface to manage peers
and routes, and issues TLS certificates locally.`,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/overmesh/meshd.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "", "Admin RPC address of the running meshd (defaults to node.endpoint from --config)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Token presented to the daemon's auth validator")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(peerCmd())
	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(certCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("meshctl %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}
}

func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	cfg, err := loader.LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// resolveServerAddr picks the admin RPC address to dial: the explicit
// --server flag if set, else node.endpoint from the loaded config.
func resolveServerAddr() (string, error) {
	if serverAddr != "" {
		return serverAddr, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Node.Endpoint == "" {
		return "", fmt.Errorf("no --server given and node.endpoint is empty in %s", configPath)
	}
	return cfg.Node.Endpoint, nil
}
