package secretflash

import (
	"errors"
	"fmt"
)

var (
	// ErrGeometry reports a flash layout that violates sector alignment or
	// does not fit the chip.
	ErrGeometry = errors.New("invalid flash geometry")

	ErrInvalidSize = errors.New("invalid size")
	ErrRange       = errors.New("out of range")
	ErrAlign       = errors.New("not sector aligned")
	ErrBusy        = errors.New("operation in progress")
	ErrAborted     = errors.New("operation aborted")

	// ErrDevice is a generic failure reported by the device (status ERR).
	ErrDevice = errors.New("device error")

	// ErrUnhandled means the device did not recognize the frame.
	ErrUnhandled = errors.New("command not handled")

	ErrShortFrame = errors.New("short frame")

	// ErrReportID rejects a report ID the device would read as a command.
	ErrReportID = errors.New("report ID collides with a command code")
)

// StatusError is returned by Client when the device answers with a status
// other than OK.
type StatusError struct {
	Cmd    Command
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: device status %s", e.Cmd, e.Status)
}

// Unwrap maps the status onto the package sentinel errors.
func (e *StatusError) Unwrap() error {
	return e.Status.Err()
}
