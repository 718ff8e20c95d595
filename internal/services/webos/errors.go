package webos

import (
	"errors"

	"tvship/internal/services"
)

func transportError(operation string, err error) error {
	return services.Wrap(services.ErrTransient, "device", operation, "", err)
}

// Rejected reports whether the error is a device-side refusal rather than a
// connectivity failure.
func Rejected(err error) bool {
	return errors.Is(err, ErrRejected)
}
