// Package errors provides the client error taxonomy, error categorization,
// and retry with exponential backoff.
//
// The taxonomy mirrors the failure surfaces of the protocol engine:
//   - TransportError: dial/IO failures (dns, refused, timeout, TLS)
//   - ProtocolError: wire-format violations (fatal to the connection)
//   - TimeoutError: a single request exceeded its deadline
//   - ConnectionLostError: outstanding requests failed by a disconnect
//   - ServerError: application-level rejection in a response envelope
//   - ClientClosedError: operation after shutdown
//
// Categorization drives the reconnection supervisor: transient errors are
// retried with backoff, permanent errors are surfaced immediately.
package errors

import (
	"errors"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: refused connections, timeouts, rate limits, lost connections.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: TLS verification failures, auth failures, invalid transitions.
	CategoryPermanent
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Retryable server error codes. CONFLICT is included because the server
// marks it retryable: a concurrent writer won the race and the same
// request may succeed on retry.
var retryableServerCodes = map[string]bool{
	"WAL_IO_ERROR":   true,
	"INTERNAL_ERROR": true,
	"RATE_LIMITED":   true,
	"CONFLICT":       true,
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent // shouldn't happen, fail safe
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		switch transportErr.Kind {
		case TransportTLSHandshake, TransportTLSVerify:
			// Security misconfiguration is never downgraded to retryable.
			return CategoryPermanent
		default:
			return CategoryTransient
		}
	}

	var lostErr *ConnectionLostError
	if errors.As(err, &lostErr) {
		return CategoryTransient
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}

	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		if serverErr.Retryable || retryableServerCodes[serverErr.Code] {
			return CategoryTransient
		}
		return CategoryPermanent
	}

	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return CategoryPermanent
	}

	var closedErr *ClientClosedError
	if errors.As(err, &closedErr) {
		return CategoryPermanent
	}

	// Unknown errors are permanent (fail safe).
	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}
