package rstmdb

import (
	"encoding/json"

	"github.com/google/uuid"
	rcperrors "github.com/rstmdb/rstmdb-go/pkg/rstmdb/errors"
	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/protocol"
)

// BatchOp is one entry of a Batch call.
type BatchOp struct {
	Op     protocol.Op
	Params map[string]any
}

// PutMachineResult is the outcome of registering a machine definition.
type PutMachineResult struct {
	Machine        string `json:"machine"`
	Version        int    `json:"version"`
	StoredChecksum string `json:"stored_checksum"`
	Created        bool   `json:"created"`
}

// GetMachineResult carries a stored machine definition.
type GetMachineResult struct {
	Machine    string         `json:"machine"`
	Version    int            `json:"version"`
	Definition map[string]any `json:"definition"`
	Checksum   string         `json:"checksum"`
}

// CreateInstanceResult is the outcome of creating an instance.
type CreateInstanceResult struct {
	InstanceID string `json:"instance_id"`
	State      string `json:"state"`
	WalOffset  int64  `json:"wal_offset"`
}

// GetInstanceResult is the current view of one instance.
type GetInstanceResult struct {
	InstanceID    string         `json:"instance_id"`
	Machine       string         `json:"machine"`
	Version       int            `json:"version"`
	State         string         `json:"state"`
	Ctx           map[string]any `json:"ctx"`
	LastEventID   string         `json:"last_event_id"`
	LastWalOffset int64          `json:"last_wal_offset"`
}

// ListInstancesResult is one page of instances.
type ListInstancesResult struct {
	Instances []map[string]any `json:"instances"`
	Total     int              `json:"total"`
	Limit     int              `json:"limit"`
	Offset    int              `json:"offset"`
}

// ApplyEventResult describes the transition an event produced.
type ApplyEventResult struct {
	InstanceID string         `json:"instance_id"`
	FromState  string         `json:"from_state"`
	ToState    string         `json:"to_state"`
	Ctx        map[string]any `json:"ctx"`
	WalOffset  int64          `json:"wal_offset"`
	Applied    bool           `json:"applied"`
	EventID    string         `json:"event_id"`
}

// WatchInstanceResult acknowledges a single-instance watch.
type WatchInstanceResult struct {
	SubscriptionID   string `json:"subscription_id"`
	InstanceID       string `json:"instance_id"`
	CurrentState     string `json:"current_state"`
	CurrentWalOffset int64  `json:"current_wal_offset"`
}

// WatchAllResult acknowledges a filtered multi-instance watch.
type WatchAllResult struct {
	SubscriptionID string `json:"subscription_id"`
	WalOffset      int64  `json:"wal_offset"`
}

// UnwatchResult acknowledges a cancelled subscription.
type UnwatchResult struct {
	SubscriptionID string `json:"subscription_id"`
	Removed        bool   `json:"removed"`
}

// WalStatsResult summarizes the server's write-ahead log.
type WalStatsResult struct {
	Entries      int64 `json:"entries"`
	Segments     int64 `json:"segments"`
	TotalBytes   int64 `json:"total_bytes"`
	FirstOffset  int64 `json:"first_offset"`
	LatestOffset int64 `json:"latest_offset"`
}

// decodeResult maps a loosely-typed result object onto a typed result
// struct. Unknown server fields are ignored; a result that cannot be
// represented at all is a protocol violation.
func decodeResult[T any](result map[string]any) (*T, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, &rcperrors.ProtocolError{
			Kind:    rcperrors.ProtocolMalformed,
			Message: "unencodable result object: " + err.Error(),
		}
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, &rcperrors.ProtocolError{
			Kind:    rcperrors.ProtocolMalformed,
			Message: "malformed result object: " + err.Error(),
		}
	}
	return out, nil
}

// NewIdempotencyKey returns a fresh key for use with WithIdempotencyKey.
// Reusing a key across retries makes APPLY_EVENT safe to resend after a
// ConnectionLostError.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

// CallOption adds optional parameters to a command.
type CallOption func(params map[string]any)

func applyOptions(params map[string]any, opts []CallOption) {
	for _, opt := range opts {
		opt(params)
	}
}

// WithInstanceID sets an explicit instance id on CREATE_INSTANCE instead of
// a server-assigned one.
func WithInstanceID(id string) CallOption {
	return func(p map[string]any) { p["instance_id"] = id }
}

// WithInitialCtx seeds the instance context on CREATE_INSTANCE.
func WithInitialCtx(ctx map[string]any) CallOption {
	return func(p map[string]any) { p["initial_ctx"] = ctx }
}

// WithIdempotencyKey deduplicates APPLY_EVENT on the server: resending with
// the same key returns the original result instead of re-applying.
func WithIdempotencyKey(key string) CallOption {
	return func(p map[string]any) { p["idempotency_key"] = key }
}

// WithExpectedState makes APPLY_EVENT conditional: the server rejects the
// event with INVALID_TRANSITION when the instance is not in this state.
func WithExpectedState(state string) CallOption {
	return func(p map[string]any) { p["expected_state"] = state }
}

// WithMachineFilter narrows LIST_INSTANCES to one machine.
func WithMachineFilter(machine string) CallOption {
	return func(p map[string]any) { p["machine"] = machine }
}

// WithStateFilter narrows LIST_INSTANCES to instances in one state.
func WithStateFilter(state string) CallOption {
	return func(p map[string]any) { p["state"] = state }
}

// WithLimit caps a listing page.
func WithLimit(limit int) CallOption {
	return func(p map[string]any) { p["limit"] = limit }
}

// WithOffset sets the listing page start.
func WithOffset(offset int) CallOption {
	return func(p map[string]any) { p["offset"] = offset }
}
