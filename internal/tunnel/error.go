package tunnel

import "fmt"

// Stages at which establishing a tunnel can fail.
const (
	StageDial    = "dial"
	StageTLS     = "tls"
	StageUpgrade = "upgrade"
)

// Error reports a failure to establish a tunnel.
type Error struct {
	Stage string
	// Status is the HTTP status of a rejected upgrade, zero otherwise.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("tunnel %s: status %d: %v", e.Stage, e.Status, e.Err)
	}
	return fmt.Sprintf("tunnel %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
