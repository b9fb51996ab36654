package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucas/overmesh/internal/meshtypes"
	"github.com/lucas/overmesh/internal/peertransport/rpc"
)

func routeCmd() *cobra.Command {
	baseCmd := &cobra.Command{
		Use:   "route",
		Short: "Manage data-channel routes",
	}

	baseCmd.AddCommand(routeAddCmd())
	baseCmd.AddCommand(routeRemoveCmd())
	baseCmd.AddCommand(routeListCmd())

	return baseCmd
}

func routeAddCmd() *cobra.Command {
	var protocol, endpoint string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Advertise a locally originated route",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminClient(func(client *rpc.AdminClient) error {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				ack, err := client.AddRoute(ctx, &rpc.AddRouteRequest{
					Token: token,
					Route: meshtypes.DataChannelDefinition{Name: args[0], Protocol: protocol, Endpoint: endpoint},
				})
				if err != nil {
					return err
				}
				if !ack.OK {
					return fmt.Errorf("daemon rejected route add: %s", ack.Error)
				}
				fmt.Printf("✅ route %s advertised\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&protocol, "protocol", "http", "Route protocol (http, http:graphql, ...)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Local endpoint the data channel serves from")
	cmd.MarkFlagRequired("endpoint")

	return cmd
}

func routeRemoveCmd() *cobra.Command {
	var protocol, endpoint string

	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Withdraw a locally originated route",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminClient(func(client *rpc.AdminClient) error {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				ack, err := client.RemoveRoute(ctx, &rpc.RemoveRouteRequest{
					Token: token,
					Route: meshtypes.DataChannelDefinition{Name: args[0], Protocol: protocol, Endpoint: endpoint},
				})
				if err != nil {
					return err
				}
				if !ack.OK {
					return fmt.Errorf("daemon rejected route remove: %s", ack.Error)
				}
				fmt.Printf("✅ route %s withdrawn\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&protocol, "protocol", "http", "Route protocol (the daemon matches routes by name only)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Local endpoint (the daemon matches routes by name only)")

	return cmd
}

func routeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List local and learned internal routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminClient(func(client *rpc.AdminClient) error {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				resp, err := client.ListRoutes(ctx, &rpc.ListRoutesRequest{Token: token})
				if err != nil {
					return err
				}
				if resp.Error != "" {
					return fmt.Errorf("daemon rejected route list: %s", resp.Error)
				}

				fmt.Println("📤 Local routes:")
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tPROTOCOL\tENDPOINT")
				for _, r := range resp.Table.Local.Routes {
					fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Protocol, r.Endpoint)
				}
				w.Flush()

				fmt.Println("\n📥 Internal (learned) routes:")
				w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tPEER\tNODE PATH\tPROTOCOL")
				for _, r := range resp.Table.Internal.Routes {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.PeerName, strings.Join(r.NodePath, " -> "), r.Protocol)
				}
				w.Flush()
				return nil
			})
		},
	}
}

// withAdminClient resolves the server address, dials it, and runs fn,
// closing the connection afterward.
func withAdminClient(fn func(client *rpc.AdminClient) error) error {
	addr, err := resolveServerAddr()
	if err != nil {
		return err
	}
	client, closeFn, err := dialAdmin(addr)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(client)
}
