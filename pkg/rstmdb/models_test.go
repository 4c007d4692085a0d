package rstmdb

import (
	"testing"
)

func TestDecodeResult(t *testing.T) {
	res, err := decodeResult[ApplyEventResult](map[string]any{
		"instance_id": "order-001",
		"from_state":  "created",
		"to_state":    "paid",
		"wal_offset":  float64(256), // json numbers decode as float64
		"applied":     true,
		"server_only": "ignored",
	})
	if err != nil {
		t.Fatalf("decodeResult() error = %v", err)
	}
	if res.FromState != "created" || res.ToState != "paid" || res.WalOffset != 256 || !res.Applied {
		t.Errorf("result = %+v", res)
	}
}

func TestDecodeResultTypeMismatch(t *testing.T) {
	_, err := decodeResult[ApplyEventResult](map[string]any{
		"wal_offset": "not a number",
	})
	if err == nil {
		t.Fatal("decodeResult() accepted a mistyped field")
	}
}

func TestCallOptions(t *testing.T) {
	params := map[string]any{"machine": "order"}
	applyOptions(params, []CallOption{
		WithInstanceID("order-001"),
		WithInitialCtx(map[string]any{"total": 100}),
		WithIdempotencyKey("key-1"),
		WithExpectedState("created"),
		WithLimit(50),
		WithOffset(10),
	})

	if params["instance_id"] != "order-001" || params["idempotency_key"] != "key-1" {
		t.Errorf("params = %v", params)
	}
	if params["expected_state"] != "created" || params["limit"] != 50 || params["offset"] != 10 {
		t.Errorf("params = %v", params)
	}
	if ctx, ok := params["initial_ctx"].(map[string]any); !ok || ctx["total"] != 100 {
		t.Errorf("initial_ctx param = %v", params["initial_ctx"])
	}
}

func TestNewIdempotencyKeyUnique(t *testing.T) {
	a, b := NewIdempotencyKey(), NewIdempotencyKey()
	if a == "" || a == b {
		t.Errorf("keys = %q, %q", a, b)
	}
}
