package webos

// PairingRequest is the body sent to start a pairing handshake. The device
// shows ClientName on its confirmation dialog.
type PairingRequest struct {
	ClientID   string `json:"clientId"`
	ClientName string `json:"clientName"`
}

type pairingRequestResponse struct {
	RequestID string `json:"requestId"`
}

// PairingState is the device-reported progress of a pairing handshake.
type PairingState string

const (
	PairingPending  PairingState = "pending"
	PairingAccepted PairingState = "accepted"
	PairingRejected PairingState = "rejected"
)

// PairingStatus is the result of polling a pairing request.
type PairingStatus struct {
	State  PairingState `json:"state"`
	Token  string       `json:"token,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// InstallRequest describes the artifact stream sent to the device.
type InstallRequest struct {
	PackageID string
	Version   string
	Checksum  string
	Size      int64
	Path      string
}

type installResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type launchRequest struct {
	ID string `json:"id"`
}

type launchResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type healthResponse struct {
	Running bool `json:"running"`
}

// LogQuery selects which log lines the device streams and from where.
type LogQuery struct {
	Cursor uint64
	App    string
}

// LogEvent is one line of the device's NDJSON log stream.
type LogEvent struct {
	Seq   uint64 `json:"seq"`
	TS    string `json:"ts"`
	Level string `json:"level"`
	App   string `json:"app"`
	Line  string `json:"line"`
}
