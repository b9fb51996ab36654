package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucas/overmesh/internal/peertransport/rpc"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a summary of the daemon's current state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminClient(func(client *rpc.AdminClient) error {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				resp, err := client.Status(ctx, &rpc.StatusRequest{Token: token})
				if err != nil {
					return err
				}
				if resp.Error != "" {
					return fmt.Errorf("daemon rejected status: %s", resp.Error)
				}

				fmt.Printf("🖥️  Node: %s\n", resp.Node.Name)
				fmt.Printf("   Domains:         %v\n", resp.Node.Domains)
				fmt.Printf("   Endpoint:        %s\n", resp.Node.Endpoint)
				fmt.Printf("   Peers:           %d\n", resp.PeerCount)
				fmt.Printf("   Local routes:    %d\n", resp.LocalRoutes)
				fmt.Printf("   Internal routes: %d\n", resp.InternalRoutes)
				return nil
			})
		},
	}
}
