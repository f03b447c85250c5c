package provider

import (
	"context"
	"errors"
	"net"
)

// Error classes returned (wrapped) by Directory implementations.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrRateLimited = errors.New("rate limited")
	ErrTransient   = errors.New("transient failure")
)

// Classify returns a short label for an error's class, used as skip detail.
func Classify(err error) string {
	var netErr net.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return "transient"
	default:
		return "error"
	}
}
