package errors

import (
	"fmt"
	"time"
)

// TransportErrorKind classifies transport-level connect and IO failures.
type TransportErrorKind string

// Transport failure kinds.
const (
	TransportDNS          TransportErrorKind = "dns"
	TransportRefused      TransportErrorKind = "refused"
	TransportTimeout      TransportErrorKind = "timeout"
	TransportTLSHandshake TransportErrorKind = "tls_handshake"
	TransportTLSVerify    TransportErrorKind = "tls_verify"
)

// TransportError reports a failure to establish or use the raw connection.
type TransportError struct {
	Kind TransportErrorKind
	Addr string
	Err  error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("transport %s error connecting to %s: %v", e.Kind, e.Addr, e.Err)
	}
	return fmt.Sprintf("transport %s error: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolErrorKind classifies wire-format violations.
type ProtocolErrorKind string

// Protocol failure kinds.
const (
	ProtocolMalformed       ProtocolErrorKind = "malformed"
	ProtocolUnsupportedType ProtocolErrorKind = "unsupported_type"
	ProtocolSizeExceeded    ProtocolErrorKind = "size_exceeded"
)

// ProtocolError reports an invalid frame or message. Receiving one from the
// stream means the connection is desynchronized and must be torn down.
type ProtocolError struct {
	Kind    ProtocolErrorKind
	Message string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error (%s): %s", e.Kind, e.Message)
}

// TimeoutError reports that a specific request did not complete in time.
// The request may still execute on the server; only the local wait ended.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s timed out after %s", e.Op, e.Timeout)
}

// ConnectionLostError is surfaced to every outstanding request when the
// connection drops. Generation identifies the connection that died.
type ConnectionLostError struct {
	Generation uint64
	Err        error
}

// Error implements the error interface.
func (e *ConnectionLostError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection lost (generation %d): %v", e.Generation, e.Err)
	}
	return fmt.Sprintf("connection lost (generation %d)", e.Generation)
}

// Unwrap returns the underlying error.
func (e *ConnectionLostError) Unwrap() error {
	return e.Err
}

// ServerError is an application-level rejection returned in a response
// envelope. It is never retried automatically by the engine.
type ServerError struct {
	Code      string
	Message   string
	Retryable bool
	Details   map[string]any
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ClientClosedError reports an operation attempted after explicit shutdown
// or after the reconnection supervisor exhausted its attempts.
type ClientClosedError struct {
	Reason string
}

// Error implements the error interface.
func (e *ClientClosedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("client closed: %s", e.Reason)
	}
	return "client closed"
}
