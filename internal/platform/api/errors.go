package api

import (
	"errors"
	"fmt"
)

// ErrUnreachable marks a connectivity failure: DNS, dial, TLS, timeout, or a
// dropped connection. The request may never have reached the server, so it
// is safe to queue and replay.
var ErrUnreachable = errors.New("api: server unreachable")

// ServerError is a definitive rejection from the server. Replaying the same
// request would be rejected again, so these are never queued.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("api: server rejected request (%d): %s", e.Status, e.Message)
}

// IsUnreachable reports whether err is a connectivity failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// IsRejection reports whether err is a server rejection, and returns it.
func IsRejection(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
