package framing

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// MagicByte1 and MagicByte2 identify an enhanced frame header, guarding
// against a stream that drifted out of sync from being mistaken for valid
// framing.
const (
	MagicByte1 = 0x4d // 'M'
	MagicByte2 = 0x50 // 'P'
)

// FrameHeaderSize is the fixed size of an enhanced frame header:
// 2 magic bytes + 4-byte total length + 8-byte request ID + 4-byte CRC32C.
const FrameHeaderSize = 2 + 4 + 8 + 4

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Frame is one message on a multiplexed connection: a request ID that
// correlates a response with its call, and the MessagePack-encoded
// payload (a Request or Response envelope from the protocol package).
type Frame struct {
	RequestID uint64
	Payload   []byte
}

// Marshal serializes the frame into [magic][total length][request id][crc32c][payload].
// The length field covers the header and payload together.
func (f *Frame) Marshal() []byte {
	total := FrameHeaderSize + len(f.Payload)
	buf := make([]byte, total)
	buf[0] = MagicByte1
	buf[1] = MagicByte2
	binary.BigEndian.PutUint32(buf[2:6], uint32(total))
	binary.BigEndian.PutUint64(buf[6:14], f.RequestID)
	copy(buf[FrameHeaderSize:], f.Payload)
	checksum := crc32.Checksum(buf[FrameHeaderSize:], crc32cTable)
	binary.BigEndian.PutUint32(buf[14:18], checksum)
	return buf
}

// UnmarshalFrame parses a complete enhanced frame (header and payload
// already assembled by the caller) and validates its CRC32C.
func UnmarshalFrame(data []byte) (*Frame, error) {
	if len(data) < FrameHeaderSize {
		return nil, fmt.Errorf("framing: frame too short: %d bytes", len(data))
	}
	if data[0] != MagicByte1 || data[1] != MagicByte2 {
		return nil, fmt.Errorf("framing: invalid magic bytes %02x%02x", data[0], data[1])
	}
	requestID := binary.BigEndian.Uint64(data[6:14])
	wantChecksum := binary.BigEndian.Uint32(data[14:18])
	payload := data[FrameHeaderSize:]
	gotChecksum := crc32.Checksum(payload, crc32cTable)
	if gotChecksum != wantChecksum {
		return nil, fmt.Errorf("framing: crc32c mismatch: got %08x, want %08x", gotChecksum, wantChecksum)
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return &Frame{RequestID: requestID, Payload: out}, nil
}
