package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrEngineUnreachable is returned when the model backend cannot be reached
// at all, as opposed to a request that reached it and failed.
var ErrEngineUnreachable = errors.New("reasoning engine unreachable")

// APIError represents an API error with HTTP status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// IsRetryableAPIError returns true if the API error has a retryable status code.
func IsRetryableAPIError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}

// IsRetryableError checks if an error is worth retrying. Typed checks come
// first; the string fallback covers untyped errors from the SDKs.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if IsRetryableAPIError(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"rate limit",
		"resource exhausted",
		"overloaded",
		"unavailable",
		"connection refused",
		"connection reset",
		"eof",
		"tls handshake",
		"no such host",
		"timeout",
		"429",
		"503",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// wrapUnreachable tags connection-level failures with ErrEngineUnreachable
// so callers can distinguish "engine down" from "engine said no".
func wrapUnreachable(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "dial tcp") {
		return fmt.Errorf("%w: %v", ErrEngineUnreachable, err)
	}
	return err
}
