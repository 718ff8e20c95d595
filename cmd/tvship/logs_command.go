package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tvship/internal/logrelay"
	"tvship/internal/registry"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var contains string
	var level string
	var app string

	cmd := &cobra.Command{
		Use:   "logs <alias>",
		Short: "Stream runtime logs from a paired TV",
		Long: "Logs tails the TV's log stream and prints it until interrupted.\n" +
			"Dropped connections are retried automatically; already-seen lines are\n" +
			"not printed twice.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			return ctx.withStore(func(store *registry.Store) error {
				relay, err := logrelay.New(cfg, store, ctx.logger())
				if err != nil {
					return err
				}
				session, err := relay.Open(cmd.Context(), args[0], logrelay.Filter{
					App:      app,
					MinLevel: level,
					Contains: contains,
				})
				if err != nil {
					return err
				}
				defer session.Close()

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for event := range session.Lines() {
					fmt.Fprintln(out, renderLogLine(event, colorize))
				}
				if err := session.Err(); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&contains, "filter", "", "Only print lines containing this substring")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().StringVar(&app, "app", "", "Only stream logs for this app id")
	return cmd
}
