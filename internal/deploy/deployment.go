package deploy

import "time"

// Status represents the lifecycle of one deployment attempt.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInstalling Status = "installing"
	StatusLaunching  Status = "launching"
	StatusRunning    Status = "running"
	StatusFailed     Status = "failed"
)

// Deployment is the transient record of one install+launch attempt.
type Deployment struct {
	ID         string
	Alias      string
	PackageID  string
	Version    string
	Checksum   string
	Attempts   int
	Status     Status
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Terminal reports whether the deployment reached a final state.
func (d *Deployment) Terminal() bool {
	return d.Status == StatusRunning || d.Status == StatusFailed
}
