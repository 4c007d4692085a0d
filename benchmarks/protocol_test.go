package benchmarks

import (
	"testing"

	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/protocol"
)

var samplePayload = []byte(`{"type":"event","subscription_id":"sub-1","instance_id":"order-001","machine":"order","version":1,"wal_offset":4096,"from_state":"created","to_state":"paid","event":"pay","payload":{"amount":100}}`)

// BenchmarkFrameEncode measures the cost of framing one payload with CRC.
func BenchmarkFrameEncode(b *testing.B) {
	frame := protocol.NewFrame(samplePayload)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		frame.Encode()
	}
}

// BenchmarkFrameDecode measures decoding one complete frame.
func BenchmarkFrameDecode(b *testing.B) {
	wire := protocol.NewFrame(samplePayload).Encode()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, _, err := protocol.DecodeFrame(wire, 0); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkChecksum measures the CRC32C cost alone.
func BenchmarkChecksum(b *testing.B) {
	b.SetBytes(int64(len(samplePayload)))
	for i := 0; i < b.N; i++ {
		protocol.Checksum(samplePayload)
	}
}

// BenchmarkDecodeMessage measures parsing an event envelope.
func BenchmarkDecodeMessage(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := protocol.DecodeMessage(samplePayload); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkEncodeRequest measures building a request frame end to end.
func BenchmarkEncodeRequest(b *testing.B) {
	params := map[string]any{"instance_id": "order-001", "event": "pay"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		req := protocol.NewRequest("1", protocol.OpApplyEvent, params)
		if _, err := protocol.EncodeRequest(req); err != nil {
			b.Fatal(err)
		}
	}
}
