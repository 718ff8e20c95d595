package main

import (
	"errors"
	"fmt"
	"testing"

	"tvship/internal/services"
)

func TestExitCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"generic", errors.New("boom"), 1},
		{"not paired", services.ErrDeviceNotPaired, 2},
		{"not found", services.ErrNotFound, 2},
		{"invalid manifest", services.ErrInvalidManifest, 3},
		{"packaging failed", services.ErrPackagingFailed, 3},
		{"install failed", services.ErrInstallFailed, 4},
		{"launch failed", services.ErrLaunchFailed, 5},
		{"launch timeout", services.ErrLaunchTimeout, 5},
		{"pairing timeout", services.ErrPairingTimeout, 6},
		{"pairing rejected", services.ErrPairingRejected, 6},
		{"network unreachable", services.ErrNetworkUnreachable, 7},
		{
			"wrapped install failure",
			services.Wrap(services.ErrInstallFailed, "deploy", "install", "gave up", fmt.Errorf("connection reset")),
			4,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCode(tc.err); got != tc.want {
				t.Fatalf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestRootCommandListsSubcommands(t *testing.T) {
	out, _, err := runCLI(t, []string{"--help"}, "")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	for _, name := range []string{"pair", "package", "deploy", "logs", "devices", "remove", "config"} {
		requireContains(t, out, name)
	}
}
