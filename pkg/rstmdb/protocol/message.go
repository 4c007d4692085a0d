package protocol

import (
	"encoding/json"
	"fmt"

	rcperrors "github.com/rstmdb/rstmdb-go/pkg/rstmdb/errors"
)

// Op is an RCP operation name.
type Op string

// RCP operations.
const (
	OpHello            Op = "HELLO"
	OpAuth             Op = "AUTH"
	OpPing             Op = "PING"
	OpBye              Op = "BYE"
	OpInfo             Op = "INFO"
	OpPutMachine       Op = "PUT_MACHINE"
	OpGetMachine       Op = "GET_MACHINE"
	OpListMachines     Op = "LIST_MACHINES"
	OpCreateInstance   Op = "CREATE_INSTANCE"
	OpGetInstance      Op = "GET_INSTANCE"
	OpListInstances    Op = "LIST_INSTANCES"
	OpDeleteInstance   Op = "DELETE_INSTANCE"
	OpApplyEvent       Op = "APPLY_EVENT"
	OpBatch            Op = "BATCH"
	OpSnapshotInstance Op = "SNAPSHOT_INSTANCE"
	OpWalRead          Op = "WAL_READ"
	OpWalStats         Op = "WAL_STATS"
	OpCompact          Op = "COMPACT"
	OpWatchInstance    Op = "WATCH_INSTANCE"
	OpWatchAll         Op = "WATCH_ALL"
	OpUnwatch          Op = "UNWATCH"
)

// Server error codes returned in response envelopes.
const (
	CodeUnsupportedProtocol  = "UNSUPPORTED_PROTOCOL"
	CodeBadRequest           = "BAD_REQUEST"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeAuthFailed           = "AUTH_FAILED"
	CodeNotFound             = "NOT_FOUND"
	CodeMachineNotFound      = "MACHINE_NOT_FOUND"
	CodeInstanceNotFound     = "INSTANCE_NOT_FOUND"
	CodeMachineVersionExists = "MACHINE_VERSION_EXISTS"
	CodeInstanceExists       = "INSTANCE_EXISTS"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeGuardFailed          = "GUARD_FAILED"
	CodeConflict             = "CONFLICT"
	CodeWalIOError           = "WAL_IO_ERROR"
	CodeInternalError        = "INTERNAL_ERROR"
	CodeRateLimited          = "RATE_LIMITED"
)

// Message type discriminators.
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
)

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Request is an RCP command envelope. Immutable after creation; it is
// consumed once by the codec.
type Request struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Op     Op             `json:"op"`
	Params map[string]any `json:"params"`
}

// NewRequest builds a request envelope for op with the given correlation id.
// A nil params map is replaced with an empty one so the wire always carries
// a params object.
func NewRequest(id string, op Op, params map[string]any) *Request {
	if params == nil {
		params = map[string]any{}
	}
	return &Request{Type: TypeRequest, ID: id, Op: op, Params: params}
}

// ResponseError holds error details in an error response.
type ResponseError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// Response is an RCP response envelope, matched to exactly one outstanding
// request by ID.
type Response struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// OK reports whether the response carries a successful status.
func (r *Response) OK() bool {
	return r.Status == StatusOK
}

// ServerError converts an error response into the client error taxonomy.
// Returns nil for successful responses.
func (r *Response) ServerError() error {
	if r.OK() {
		return nil
	}
	if r.Error == nil {
		return &rcperrors.ServerError{Code: CodeInternalError, Message: "error response without error detail"}
	}
	return &rcperrors.ServerError{
		Code:      r.Error.Code,
		Message:   r.Error.Message,
		Retryable: r.Error.Retryable,
		Details:   r.Error.Details,
	}
}

// StreamEvent is a state-transition notification from a watch subscription.
// Immutable; delivered at most once per subscription under normal operation,
// though duplicates are possible across a reconnect boundary.
type StreamEvent struct {
	Type           string         `json:"type"`
	SubscriptionID string         `json:"subscription_id"`
	InstanceID     string         `json:"instance_id"`
	Machine        string         `json:"machine"`
	Version        int            `json:"version"`
	WalOffset      int64          `json:"wal_offset"`
	FromState      string         `json:"from_state"`
	ToState        string         `json:"to_state"`
	Event          string         `json:"event"`
	Payload        map[string]any `json:"payload,omitempty"`
	Ctx            map[string]any `json:"ctx,omitempty"`
}

// EncodeRequest serializes a request envelope into a CRC-protected frame.
func EncodeRequest(req *Request) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &rcperrors.ProtocolError{
			Kind:    rcperrors.ProtocolMalformed,
			Message: fmt.Sprintf("encode request: %v", err),
		}
	}
	return NewFrame(payload).Encode(), nil
}

// DecodeMessage parses a frame payload into a *Response or *StreamEvent.
func DecodeMessage(payload []byte) (any, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, &rcperrors.ProtocolError{
			Kind:    rcperrors.ProtocolMalformed,
			Message: fmt.Sprintf("invalid json payload: %v", err),
		}
	}

	switch probe.Type {
	case TypeResponse:
		var resp Response
		if err := json.Unmarshal(payload, &resp); err != nil {
			return nil, &rcperrors.ProtocolError{
				Kind:    rcperrors.ProtocolMalformed,
				Message: fmt.Sprintf("invalid response envelope: %v", err),
			}
		}
		if resp.ID == "" {
			return nil, &rcperrors.ProtocolError{
				Kind:    rcperrors.ProtocolMalformed,
				Message: "response envelope missing id",
			}
		}
		if resp.Status != StatusOK && resp.Status != StatusError {
			return nil, &rcperrors.ProtocolError{
				Kind:    rcperrors.ProtocolMalformed,
				Message: fmt.Sprintf("response envelope has invalid status %q", resp.Status),
			}
		}
		return &resp, nil

	case TypeEvent:
		var evt StreamEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, &rcperrors.ProtocolError{
				Kind:    rcperrors.ProtocolMalformed,
				Message: fmt.Sprintf("invalid event envelope: %v", err),
			}
		}
		if evt.SubscriptionID == "" {
			return nil, &rcperrors.ProtocolError{
				Kind:    rcperrors.ProtocolMalformed,
				Message: "event envelope missing subscription_id",
			}
		}
		return &evt, nil

	default:
		return nil, &rcperrors.ProtocolError{
			Kind:    rcperrors.ProtocolUnsupportedType,
			Message: fmt.Sprintf("unknown message type %q", probe.Type),
		}
	}
}
