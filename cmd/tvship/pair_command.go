package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tvship/internal/pairing"
	"tvship/internal/registry"
)

func newPairCommand(ctx *commandContext) *cobra.Command {
	var timeoutSeconds int

	cmd := &cobra.Command{
		Use:   "pair <host> <port> <alias>",
		Short: "Pair with a TV and register it under an alias",
		Long: "Pair contacts the TV, asks it to show a confirmation dialog, and waits\n" +
			"for the viewer to accept. On acceptance the device is stored under the\n" +
			"alias for later deploys.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := args[0]
			port, err := strconv.Atoi(args[1])
			if err != nil || port < 1 || port > 65535 {
				return fmt.Errorf("invalid port %q", args[1])
			}
			alias := args[2]

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if timeoutSeconds > 0 {
				cfg.Pairing.TimeoutSeconds = timeoutSeconds
			}

			return ctx.withStoreAndLocks(func(store *registry.Store, locks *registry.Locks) error {
				manager, err := pairing.New(cfg, store, locks, ctx.logger())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requesting pairing with %s:%d; confirm on the TV screen...\n", host, port)
				device, err := manager.Pair(cmd.Context(), host, port, alias)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Paired %q (%s)\n", device.Alias, device.Endpoint())
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 0, "Confirmation timeout in seconds (overrides configuration)")
	return cmd
}
