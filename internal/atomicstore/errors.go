package atomicstore

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage marks a mutation that failed after every retry.
	ErrStorage = errors.New("atomic store: storage failure")
	// ErrQueueFull is returned when too many callers are already waiting on a key.
	ErrQueueFull = errors.New("atomic store: key queue full")
)

// OpError describes a failed store operation.
type OpError struct {
	Op       string
	Key      string
	Attempts int
	Err      error
}

func (e *OpError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s %s failed after %d attempts: %v", e.Op, e.Key, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}
