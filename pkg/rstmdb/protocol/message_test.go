package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	rcperrors "github.com/rstmdb/rstmdb-go/pkg/rstmdb/errors"
)

func TestEncodeRequestRoundTrip(t *testing.T) {
	wire, err := EncodeRequest(NewRequest("42", OpApplyEvent, map[string]any{
		"instance_id": "order-001",
		"event":       "pay",
	}))
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}

	frame, _, err := DecodeFrame(wire, 0)
	if err != nil || frame == nil {
		t.Fatalf("DecodeFrame() = %v, %v", frame, err)
	}

	var req Request
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if req.Type != TypeRequest || req.ID != "42" || req.Op != OpApplyEvent {
		t.Errorf("request = %+v", req)
	}
	if req.Params["instance_id"] != "order-001" {
		t.Errorf("params = %v", req.Params)
	}
}

func TestNewRequestNilParams(t *testing.T) {
	req := NewRequest("1", OpPing, nil)
	if req.Params == nil {
		t.Fatal("Params = nil, want empty map")
	}
}

func TestDecodeMessageResponse(t *testing.T) {
	payload := []byte(`{"type":"response","id":"7","status":"ok","result":{"pong":true}}`)
	msg, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	resp, ok := msg.(*Response)
	if !ok {
		t.Fatalf("DecodeMessage() = %T, want *Response", msg)
	}
	if resp.ID != "7" || !resp.OK() {
		t.Errorf("response = %+v", resp)
	}
}

func TestDecodeMessageErrorResponse(t *testing.T) {
	payload := []byte(`{"type":"response","id":"9","status":"error","error":{"code":"INSTANCE_NOT_FOUND","message":"no such instance","retryable":false}}`)
	msg, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	resp := msg.(*Response)
	if resp.OK() {
		t.Fatal("OK() = true for error response")
	}

	serr := resp.ServerError()
	var srv *rcperrors.ServerError
	if !errors.As(serr, &srv) {
		t.Fatalf("ServerError() = %T, want *ServerError", serr)
	}
	if srv.Code != CodeInstanceNotFound || srv.Retryable {
		t.Errorf("server error = %+v", srv)
	}
}

func TestDecodeMessageEvent(t *testing.T) {
	payload := []byte(`{"type":"event","subscription_id":"sub-1","instance_id":"order-001","machine":"order","version":1,"wal_offset":128,"from_state":"created","to_state":"paid","event":"pay"}`)
	msg, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	evt, ok := msg.(*StreamEvent)
	if !ok {
		t.Fatalf("DecodeMessage() = %T, want *StreamEvent", msg)
	}
	if evt.SubscriptionID != "sub-1" || evt.FromState != "created" || evt.ToState != "paid" || evt.WalOffset != 128 {
		t.Errorf("event = %+v", evt)
	}
}

func TestDecodeMessageUnknownType(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"type":"gossip"}`))
	var protoErr *rcperrors.ProtocolError
	if !errors.As(err, &protoErr) || protoErr.Kind != rcperrors.ProtocolUnsupportedType {
		t.Fatalf("DecodeMessage() error = %v, want unsupported-type protocol error", err)
	}
}

func TestDecodeMessageInvalid(t *testing.T) {
	cases := map[string]string{
		"not json":       `{{{`,
		"missing id":     `{"type":"response","status":"ok"}`,
		"bad status":     `{"type":"response","id":"1","status":"maybe"}`,
		"missing sub id": `{"type":"event","instance_id":"x"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(payload))
			var protoErr *rcperrors.ProtocolError
			if !errors.As(err, &protoErr) || protoErr.Kind != rcperrors.ProtocolMalformed {
				t.Fatalf("DecodeMessage(%q) error = %v, want malformed protocol error", payload, err)
			}
		})
	}
}

func TestServerErrorWithoutDetail(t *testing.T) {
	resp := &Response{Type: TypeResponse, ID: "1", Status: StatusError}
	var srv *rcperrors.ServerError
	if !errors.As(resp.ServerError(), &srv) || srv.Code != CodeInternalError {
		t.Fatalf("ServerError() = %v, want INTERNAL_ERROR fallback", resp.ServerError())
	}
}
