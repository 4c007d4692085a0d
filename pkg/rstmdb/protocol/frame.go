// Package protocol implements the RCP wire format spoken by rstmdb servers:
// a fixed 18-byte frame header followed by an optional header extension and
// a JSON message payload.
//
// Frame layout (big-endian):
//
//	+--------+---------+--------+------------+-------------+--------+
//	| magic  | version | flags  | header_len | payload_len | crc32c |
//	| 4 byte | 2 bytes |2 bytes |  2 bytes   |   4 bytes   | 4 bytes|
//	+--------+---------+--------+------------+-------------+--------+
//	| [header extension] | payload                                  |
//	+--------------------+------------------------------------------+
//
// The codec is pure and stateless: encoding and decoding never touch shared
// state, and decoding a partial buffer reports "incomplete" rather than an
// error so callers can accumulate bytes from a stream.
package protocol

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	rcperrors "github.com/rstmdb/rstmdb-go/pkg/rstmdb/errors"
)

// Wire constants for the RCP frame header.
const (
	// Magic identifies an RCP frame.
	Magic = "RCPX"

	// Version is the protocol version this codec speaks.
	Version = 1

	// FlagCRC marks frames whose header carries a CRC32C of the payload.
	FlagCRC = 0x0001

	// HeaderSize is the fixed frame header length in bytes.
	HeaderSize = 18

	// DefaultMaxFrameSize bounds header extension + payload. Frames larger
	// than the configured limit are rejected with ErrKindSizeExceeded.
	DefaultMaxFrameSize = 16 << 20
)

// castagnoli is the CRC32C table used for payload checksums.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Checksum returns the CRC32C (Castagnoli) checksum of data.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// Frame is a single RCP frame.
type Frame struct {
	// Payload is the message body, normally a JSON envelope.
	Payload []byte

	// HeaderExt is the optional header extension. Unused by the current
	// protocol version but preserved on decode for forward compatibility.
	HeaderExt []byte

	// UseCRC controls whether the encoded header carries a payload checksum.
	UseCRC bool
}

// NewFrame wraps payload in a frame with CRC enabled.
func NewFrame(payload []byte) *Frame {
	return &Frame{Payload: payload, UseCRC: true}
}

// Encode serializes the frame to wire bytes.
func (f *Frame) Encode() []byte {
	var flags uint16
	var crc uint32
	if f.UseCRC {
		flags |= FlagCRC
		crc = Checksum(f.Payload)
	}

	buf := make([]byte, HeaderSize+len(f.HeaderExt)+len(f.Payload))
	copy(buf[0:4], Magic)
	binary.BigEndian.PutUint16(buf[4:6], Version)
	binary.BigEndian.PutUint16(buf[6:8], flags)
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(f.HeaderExt)))
	binary.BigEndian.PutUint32(buf[10:14], uint32(len(f.Payload)))
	binary.BigEndian.PutUint32(buf[14:18], crc)
	copy(buf[HeaderSize:], f.HeaderExt)
	copy(buf[HeaderSize+len(f.HeaderExt):], f.Payload)
	return buf
}

// DecodeFrame decodes one frame from the front of buf.
//
// Returns (frame, rest, nil) on success, (nil, buf, nil) when buf does not
// yet hold a complete frame, and (nil, buf, err) when the stream is
// corrupt. maxFrameSize <= 0 selects DefaultMaxFrameSize.
func DecodeFrame(buf []byte, maxFrameSize int) (*Frame, []byte, error) {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	if len(buf) < HeaderSize {
		return nil, buf, nil
	}

	if string(buf[0:4]) != Magic {
		return nil, buf, &rcperrors.ProtocolError{
			Kind:    rcperrors.ProtocolMalformed,
			Message: fmt.Sprintf("invalid magic %q", buf[0:4]),
		}
	}
	version := binary.BigEndian.Uint16(buf[4:6])
	if version != Version {
		return nil, buf, &rcperrors.ProtocolError{
			Kind:    rcperrors.ProtocolMalformed,
			Message: fmt.Sprintf("unsupported protocol version %d", version),
		}
	}

	flags := binary.BigEndian.Uint16(buf[6:8])
	headerLen := int(binary.BigEndian.Uint16(buf[8:10]))
	payloadLen := int(binary.BigEndian.Uint32(buf[10:14]))
	crcExpected := binary.BigEndian.Uint32(buf[14:18])

	if headerLen+payloadLen > maxFrameSize {
		return nil, buf, &rcperrors.ProtocolError{
			Kind:    rcperrors.ProtocolSizeExceeded,
			Message: fmt.Sprintf("frame size %d exceeds limit %d", headerLen+payloadLen, maxFrameSize),
		}
	}

	total := HeaderSize + headerLen + payloadLen
	if len(buf) < total {
		return nil, buf, nil
	}

	headerExt := buf[HeaderSize : HeaderSize+headerLen]
	payload := buf[HeaderSize+headerLen : total]

	useCRC := flags&FlagCRC != 0
	if useCRC {
		if actual := Checksum(payload); actual != crcExpected {
			return nil, buf, &rcperrors.ProtocolError{
				Kind:    rcperrors.ProtocolMalformed,
				Message: fmt.Sprintf("crc mismatch: header %08x, payload %08x", crcExpected, actual),
			}
		}
	}

	f := &Frame{
		Payload:   append([]byte(nil), payload...),
		HeaderExt: append([]byte(nil), headerExt...),
		UseCRC:    useCRC,
	}
	return f, buf[total:], nil
}
