package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tvship/internal/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps error kinds to stable shell exit codes so scripts can
// branch on the failure class.
func exitCode(err error) int {
	switch {
	case errors.Is(err, services.ErrDeviceNotPaired), errors.Is(err, services.ErrNotFound):
		return 2
	case errors.Is(err, services.ErrInvalidManifest), errors.Is(err, services.ErrPackagingFailed):
		return 3
	case errors.Is(err, services.ErrInstallFailed):
		return 4
	case errors.Is(err, services.ErrLaunchFailed), errors.Is(err, services.ErrLaunchTimeout):
		return 5
	case errors.Is(err, services.ErrPairingTimeout), errors.Is(err, services.ErrPairingRejected):
		return 6
	case errors.Is(err, services.ErrNetworkUnreachable):
		return 7
	default:
		return 1
	}
}
