package inspector

import (
	"errors"
	"fmt"
)

var ErrActivationTimeout = errors.New("timed out waiting for the inspector to start")

type ActivationSignalError struct {
	PID int32
	Err error
}

func (e *ActivationSignalError) Error() string {
	return fmt.Sprintf("could not send SIGUSR1 signal to process %d: %s", e.PID, e.Err)
}

func (e *ActivationSignalError) Unwrap() error { return e.Err }

// AmbiguousEndpointError is returned when the port snapshots do not single out one inspector port.
type AmbiguousEndpointError struct {
	Before PortSet
	After  PortSet
	// Candidates holds the competing ports when more than one qualified.
	Candidates PortSet
}

func (e *AmbiguousEndpointError) Error() string {
	if len(e.Candidates) > 1 {
		return fmt.Sprintf("could not infer inspection port, before=%v after=%v candidates=%v", []uint16(e.Before), []uint16(e.After), []uint16(e.Candidates))
	}
	return fmt.Sprintf("could not infer inspection port, before=%v after=%v", []uint16(e.Before), []uint16(e.After))
}
