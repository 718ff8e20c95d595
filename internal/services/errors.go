package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for failure classification. Components wrap errors with
// exactly one marker so callers can branch on errors.Is and the CLI can map
// each kind to an exit code.
var (
	ErrNetworkUnreachable = errors.New("network unreachable")
	ErrPairingTimeout     = errors.New("pairing timeout")
	ErrPairingRejected    = errors.New("pairing rejected")
	ErrDuplicateAlias     = errors.New("duplicate alias")
	ErrInvalidManifest    = errors.New("invalid manifest")
	ErrPackagingFailed    = errors.New("packaging failed")
	ErrDeviceNotPaired    = errors.New("device not paired")
	ErrInstallFailed      = errors.New("install failed")
	ErrLaunchFailed       = errors.New("launch failed")
	ErrLaunchTimeout      = errors.New("launch timeout")
	ErrNotFound           = errors.New("not found")

	// ErrTransient tags connectivity-class failures eligible for local
	// bounded retry. It never escapes a component without being converted
	// to one of the taxonomy markers above.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Transient reports whether the error carries the transient connectivity
// classification and is eligible for local bounded retry by the owning
// component.
func Transient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrNetworkUnreachable)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
