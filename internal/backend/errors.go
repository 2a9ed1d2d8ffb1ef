package backend

import "fmt"

// Error reports that the backend was reachable but answered with a failure
// status. The backend's own message is carried along so the gateway can
// forward it in the error envelope.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
}

// UnavailableError reports a transport-level failure reaching the backend:
// connection refused, DNS failure, or timeout.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("backend unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
