package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Gateway errors fall into two classes. Transient failures (timeouts,
// disconnects, requotes) are retried with bounded backoff; everything else
// is fatal for the operation and surfaced to the caller.
var (
	ErrTransient = errors.New("broker: transient failure")
	ErrRejected  = errors.New("broker: order rejected")
	ErrNotFound  = errors.New("broker: ticket not found")
)

// Transient wraps err as a retryable gateway failure.
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether the error is worth a bounded retry.
// Network timeouts and context deadline hits count; cancellation does not,
// since a cancelled context means the caller is shutting down.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return false
}
