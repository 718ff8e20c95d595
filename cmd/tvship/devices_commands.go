package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tvship/internal/registry"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List registered TVs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *registry.Store) error {
				devices, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(devices) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No devices registered. Pair one with `tvship pair`.")
					return nil
				}

				rows := make([][]string, 0, len(devices))
				for _, device := range devices {
					rows = append(rows, []string{
						device.Alias,
						device.Endpoint(),
						string(device.State),
						cellTimestamp(device.LastSeen),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Alias", "Endpoint", "State", "Last Seen"},
					rows,
				))
				return nil
			})
		},
	}

	cmd.AddCommand(newDevicesHistoryCommand(ctx))
	return cmd
}

func newDevicesHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <alias>",
		Short: "Show recent deployments to a TV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *registry.Store) error {
				records, err := store.ListDeployments(cmd.Context(), registry.NormalizeAlias(args[0]), limit)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No deployments recorded for %q.\n", args[0])
					return nil
				}

				rows := make([][]string, 0, len(records))
				for _, record := range records {
					rows = append(rows, []string{
						cellTimestamp(&record.StartedAt),
						record.PackageID + " " + record.Version,
						record.Status,
						strconv.Itoa(record.Attempts),
						record.Error,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Started", "Package", "Status", "Attempts", "Detail"},
					rows,
					3,
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of deployments to show")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <alias>",
		Short: "Remove a TV and its deployment history from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *registry.Store) error {
				if err := store.Remove(cmd.Context(), registry.NormalizeAlias(args[0])); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %q\n", args[0])
				return nil
			})
		},
	}
}
