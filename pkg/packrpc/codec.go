package packrpc

import "fmt"

// Codec defines the interface for encoding/decoding RPC payloads.
type Codec interface {
	// Marshal serializes a value to bytes.
	Marshal(v interface{}) ([]byte, error)

	// Unmarshal deserializes bytes to a value.
	Unmarshal(data []byte, v interface{}) error

	// Name returns the name of the codec.
	Name() string
}

// CodecType selects which Codec implementation a Server or Pool uses on
// the wire.
type CodecType string

const (
	// CodecJSON uses JSON encoding.
	CodecJSON CodecType = "json"
	// CodecMessagePack uses this module's own MessagePack implementation
	// and is the default for new deployments.
	CodecMessagePack CodecType = "msgpack"
)

// NewCodec creates a new codec based on the type. An empty CodecType
// selects MessagePack, since it is the native wire format this module is
// built around.
func NewCodec(codecType CodecType) (Codec, error) {
	switch codecType {
	case CodecMessagePack, "":
		return &MessagePackCodec{}, nil
	case CodecJSON:
		return &JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("packrpc: unknown codec type: %s", codecType)
	}
}
