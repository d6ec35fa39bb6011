// Package framing implements length-prefixed message framing for
// MessagePack-RPC traffic over a stream connection (typically a Unix
// domain socket). Two modes are supported: a plain 4-byte length prefix,
// and an enhanced frame that adds a request ID and a CRC32C checksum so a
// single connection can multiplex concurrent in-flight calls.
package framing

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DefaultMaxFrameSize bounds how large a single message may be, to keep a
// corrupt or hostile length prefix from causing an unbounded allocation.
const DefaultMaxFrameSize = 16 * 1024 * 1024

// Framer reads and writes framed messages over a stream.
type Framer struct {
	rw           io.ReadWriter
	maxFrameSize int
	enhanced     bool
}

// NewFramer returns a Framer using the simple 4-byte length-prefix mode.
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{rw: rw, maxFrameSize: DefaultMaxFrameSize}
}

// NewFramerWithMaxSize returns a Framer in simple mode with a custom
// maximum frame size.
func NewFramerWithMaxSize(rw io.ReadWriter, maxSize int) *Framer {
	return &Framer{rw: rw, maxFrameSize: maxSize}
}

// NewEnhancedFramer returns a Framer that reads and writes Frame values
// with request IDs and CRC32C validation, for use over a multiplexed
// connection.
func NewEnhancedFramer(rw io.ReadWriter) *Framer {
	return &Framer{rw: rw, maxFrameSize: DefaultMaxFrameSize, enhanced: true}
}

// WriteMessage writes data as a simple [4-byte length][payload] frame.
func (f *Framer) WriteMessage(data []byte) error {
	if len(data) > f.maxFrameSize {
		return fmt.Errorf("framing: message size %d exceeds max frame size %d", len(data), f.maxFrameSize)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := f.rw.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("framing: write length: %w", err)
	}
	if _, err := f.rw.Write(data); err != nil {
		return fmt.Errorf("framing: write payload: %w", err)
	}
	return nil
}

// ReadMessage reads one simple frame and returns its payload.
func (f *Framer) ReadMessage() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(f.rw, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("framing: read length: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if int(length) > f.maxFrameSize {
		return nil, fmt.Errorf("framing: frame size %d exceeds max frame size %d", length, f.maxFrameSize)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(f.rw, data); err != nil {
		return nil, fmt.Errorf("framing: read payload: %w", err)
	}
	return data, nil
}

// WriteFrame writes an enhanced frame carrying a request ID and CRC32C.
// On a Framer built with NewFramer/NewFramerWithMaxSize it degrades to a
// plain WriteMessage of the frame's payload.
func (f *Framer) WriteFrame(frame *Frame) error {
	if !f.enhanced {
		return f.WriteMessage(frame.Payload)
	}
	if len(frame.Payload) > f.maxFrameSize {
		return fmt.Errorf("framing: payload size %d exceeds max frame size %d", len(frame.Payload), f.maxFrameSize)
	}
	if _, err := f.rw.Write(frame.Marshal()); err != nil {
		return fmt.Errorf("framing: write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one enhanced frame, validating its CRC32C. On a Framer
// built without enhanced mode it degrades to ReadMessage and returns a
// Frame with RequestID zero.
func (f *Framer) ReadFrame() (*Frame, error) {
	if !f.enhanced {
		data, err := f.ReadMessage()
		if err != nil {
			return nil, err
		}
		return &Frame{Payload: data}, nil
	}

	header := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(f.rw, header); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("framing: read header: %w", err)
	}
	if header[0] != MagicByte1 || header[1] != MagicByte2 {
		return nil, fmt.Errorf("framing: invalid magic bytes %02x%02x", header[0], header[1])
	}
	length := binary.BigEndian.Uint32(header[2:6])
	if int(length) > f.maxFrameSize+FrameHeaderSize {
		return nil, fmt.Errorf("framing: frame size %d exceeds max frame size %d", length, f.maxFrameSize)
	}
	payloadSize := int(length) - FrameHeaderSize
	if payloadSize < 0 {
		return nil, fmt.Errorf("framing: frame length %d smaller than header size %d", length, FrameHeaderSize)
	}
	payload := make([]byte, payloadSize)
	if payloadSize > 0 {
		if _, err := io.ReadFull(f.rw, payload); err != nil {
			return nil, fmt.Errorf("framing: read payload: %w", err)
		}
	}

	complete := make([]byte, length)
	copy(complete, header)
	copy(complete[FrameHeaderSize:], payload)
	return UnmarshalFrame(complete)
}
