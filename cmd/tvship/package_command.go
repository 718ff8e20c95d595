package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"tvship/internal/packager"
)

func newPackageCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var noCache bool

	cmd := &cobra.Command{
		Use:   "package <sourceDir>",
		Short: "Build an installable package from an app source directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if noCache {
				cfg.Packager.CacheEnabled = false
			}

			adapter, err := packager.New(cfg, ctx.logger())
			if err != nil {
				return err
			}
			artifact, err := adapter.Package(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			path := artifact.Path
			if outputPath != "" {
				if err := copyArtifact(artifact.Path, outputPath); err != nil {
					return err
				}
				path = outputPath
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Packaged %s %s\n", artifact.PackageID, artifact.Version)
			fmt.Fprintf(out, "  artifact: %s\n", path)
			fmt.Fprintf(out, "  sha256:   %s\n", artifact.Checksum)
			fmt.Fprintf(out, "  size:     %d bytes\n", artifact.Size)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Copy the artifact to this path")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Rebuild even when a cached artifact exists")
	return cmd
}

func copyArtifact(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy artifact to %s: %w", dst, err)
	}
	return out.Close()
}
