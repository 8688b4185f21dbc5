package greengrass

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced control-plane resource
// does not exist.
var ErrNotFound = errors.New("greengrass resource not found")

// UpstreamError wraps a failed control-plane call. No retries are
// performed here; retry policy belongs to the caller or the queue
// redelivery, not this client.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("greengrass %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}
