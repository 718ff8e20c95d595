package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tvship/internal/deploy"
	"tvship/internal/packager"
	"tvship/internal/registry"
)

func newDeployCommand(ctx *commandContext) *cobra.Command {
	var appID string
	var appVersion string

	cmd := &cobra.Command{
		Use:   "deploy <alias> <artifact.ipk>",
		Short: "Install and launch a packaged app on a paired TV",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			artifact, err := packager.InferArtifact(args[1], appID, appVersion)
			if err != nil {
				return err
			}

			return ctx.withStoreAndLocks(func(store *registry.Store, locks *registry.Locks) error {
				orch, err := deploy.New(cfg, store, locks, ctx.logger())
				if err != nil {
					return err
				}
				dep, err := orch.Deploy(cmd.Context(), args[0], artifact)
				if dep != nil && dep.Attempts > 1 {
					fmt.Fprintf(cmd.ErrOrStderr(), "install took %d attempts\n", dep.Attempts)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s is running on %q\n", dep.PackageID, dep.Version, dep.Alias)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&appID, "app-id", "", "App id when it cannot be inferred from the artifact name")
	cmd.Flags().StringVar(&appVersion, "app-version", "", "App version when it cannot be inferred from the artifact name")
	return cmd
}
