package registry

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// State represents the trust lifecycle of a registered device.
type State string

const (
	StateUnpaired    State = "unpaired"
	StatePairing     State = "pairing"
	StatePaired      State = "paired"
	StateUnreachable State = "unreachable"
)

var stateSet = map[State]struct{}{
	StateUnpaired:    {},
	StatePairing:     {},
	StatePaired:      {},
	StateUnreachable: {},
}

// ValidState reports whether the value is a known device state.
func ValidState(state State) bool {
	_, ok := stateSet[state]
	return ok
}

// Device is one registry entry. Token is non-empty exactly when State is
// StatePaired.
type Device struct {
	Alias     string
	Host      string
	Port      int
	Token     string
	State     State
	LastSeen  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the structural invariants before a device is persisted.
func (d *Device) Validate() error {
	if strings.TrimSpace(d.Alias) == "" {
		return fmt.Errorf("device alias is required")
	}
	if strings.TrimSpace(d.Host) == "" {
		return fmt.Errorf("device host is required")
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("device port %d out of range", d.Port)
	}
	if !ValidState(d.State) {
		return fmt.Errorf("unknown device state %q", d.State)
	}
	if d.State == StatePaired && strings.TrimSpace(d.Token) == "" {
		return fmt.Errorf("paired device requires a pairing token")
	}
	if d.State != StatePaired && strings.TrimSpace(d.Token) != "" {
		return fmt.Errorf("pairing token present on %s device", d.State)
	}
	return nil
}

// Endpoint returns the host:port string the device client dials.
func (d *Device) Endpoint() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// NormalizeAlias canonicalizes an operator-supplied alias so uniqueness
// checks are not fooled by visually identical unicode forms.
func NormalizeAlias(alias string) string {
	return norm.NFC.String(strings.TrimSpace(alias))
}

// DeploymentRecord is one row of deployment history for a device.
type DeploymentRecord struct {
	ID         string
	Alias      string
	PackageID  string
	Version    string
	Checksum   string
	Status     string
	Attempts   int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}
