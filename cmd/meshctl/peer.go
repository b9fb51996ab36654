package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucas/overmesh/internal/meshtypes"
	"github.com/lucas/overmesh/internal/peertransport/rpc"
)

func peerCmd() *cobra.Command {
	baseCmd := &cobra.Command{
		Use:   "peer",
		Short: "Manage mesh peers",
	}

	baseCmd.AddCommand(peerAddCmd())
	baseCmd.AddCommand(peerListCmd())
	baseCmd.AddCommand(peerRemoveCmd())

	return baseCmd
}

func peerAddCmd() *cobra.Command {
	var endpoint, publicAddress, envoyAddress, peerToken string
	var domains []string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a peer to the mesh",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminClient(func(client *rpc.AdminClient) error {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				ack, err := client.AddPeer(ctx, &rpc.AddPeerRequest{
					Token: token,
					Peer: meshtypes.PeerInfo{
						Name:          args[0],
						Endpoint:      endpoint,
						Domains:       domains,
						PublicAddress: publicAddress,
						EnvoyAddress:  envoyAddress,
						PeerToken:     peerToken,
					},
				})
				if err != nil {
					return err
				}
				if !ack.OK {
					return fmt.Errorf("daemon rejected peer add: %s", ack.Error)
				}
				fmt.Printf("✅ peer %s added\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Peer's iBGP dial address (host:port)")
	cmd.Flags().StringSliceVar(&domains, "domain", nil, "Domains the peer advertises")
	cmd.Flags().StringVar(&publicAddress, "public-address", "", "Peer's publicly reachable address")
	cmd.Flags().StringVar(&envoyAddress, "envoy-address", "", "Peer's proxy config service address")
	cmd.Flags().StringVar(&peerToken, "peer-token", "", "Token presented when dialing this peer")
	cmd.MarkFlagRequired("endpoint")

	return cmd
}

func peerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured peers and their connection status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminClient(func(client *rpc.AdminClient) error {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				resp, err := client.ListPeers(ctx, &rpc.ListPeersRequest{Token: token})
				if err != nil {
					return err
				}
				if resp.Error != "" {
					return fmt.Errorf("daemon rejected peer list: %s", resp.Error)
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tENDPOINT\tSTATUS\tLAST MESSAGE")
				for _, p := range resp.Peers {
					fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\n", p.Name, p.Endpoint, statusIcon(p.ConnectionStatus), p.ConnectionStatus, p.LastMessageReceived.Format(time.RFC3339))
				}
				w.Flush()
				return nil
			})
		},
	}
}

func peerRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a peer from the mesh",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminClient(func(client *rpc.AdminClient) error {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				ack, err := client.RemovePeer(ctx, &rpc.RemovePeerRequest{Token: token, Name: args[0]})
				if err != nil {
					return err
				}
				if !ack.OK {
					return fmt.Errorf("daemon rejected peer remove: %s", ack.Error)
				}
				fmt.Printf("✅ peer %s removed\n", args[0])
				return nil
			})
		},
	}
}

func statusIcon(status meshtypes.ConnectionStatus) string {
	switch status {
	case meshtypes.StatusConnected:
		return "🟢"
	case meshtypes.StatusInitializing:
		return "🟡"
	default:
		return "🔴"
	}
}
