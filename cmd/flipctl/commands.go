package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	server "cart-flipper/server"
	"cart-flipper/server/internal/app"
	"cart-flipper/server/internal/objectid"
)

func newCorrectCmd() *cobra.Command {
	var (
		authorityURL string
		peerID       uint64
		timeout      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "correct <owner:id>",
		Short: "Ask the authority to right a misoriented object",
		Long: `Connect to the authority as a short-lived peer and send one
correct-object request. Delivery is best-effort: the outcome shows up in the
authority's event log, not here.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := objectid.Parse(args[0])
			if err != nil {
				return err
			}
			if peerID == 0 {
				peerID = app.RandomPeerID()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, err := server.NewClient(server.ClientConfig{ID: peerID})
			if err != nil {
				return err
			}
			if err := client.Connect(ctx, authorityURL); err != nil {
				return err
			}
			defer client.Close()

			if err := client.RequestCorrectionID(ctx, id); err != nil {
				return err
			}
			authority, _ := client.Router().Authority()
			fmt.Fprintf(cmd.OutOrStdout(), "requested correction of %s from authority %d\n", id, authority)
			return nil
		},
	}
	cmd.Flags().StringVar(&authorityURL, "authority", "ws://localhost:8080/ws", "authority websocket URL")
	cmd.Flags().Uint64Var(&peerID, "peer", 0, "routing id to connect as (0 picks one at random)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for the authority")
	return cmd
}

func newEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <owner:id>",
		Short: "Print the canonical form and routing scalar of an identifier",
		Args:  cobra.ExactArgs(1),
		// encode takes no flags; "-1:2" must reach the parser as an id.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := objectid.Parse(args[0])
			if err != nil {
				return err
			}
			scalar := id.RoutingScalar()
			fmt.Fprintf(cmd.OutOrStdout(), "id:      %s\nscalar:  %d\nhex:     0x%016x\n", id, scalar, scalar)
			return nil
		},
	}
}
