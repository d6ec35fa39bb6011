package packrpc

import (
	"fmt"

	"github.com/hexwire/packrpc/pkg/msgpack"
)

// MessagePackCodec implements Codec on top of pkg/msgpack. Unlike a
// reflection-based codec it only accepts the value shapes msgpack.Value
// can represent natively: nil, bool, the numeric kinds, string, []byte,
// []interface{}, map[string]interface{}, and msgpack.Value itself.
// Arbitrary structs are not supported; callers that need them should
// shape their data into maps before handing it to the codec.
type MessagePackCodec struct{}

// Marshal serializes a value to MessagePack bytes.
func (c *MessagePackCodec) Marshal(v interface{}) ([]byte, error) {
	mv, err := toValue(v)
	if err != nil {
		return nil, fmt.Errorf("packrpc: msgpack marshal: %w", err)
	}
	sink, err := msgpack.Encode(mv)
	if err != nil {
		return nil, fmt.Errorf("packrpc: msgpack marshal: %w", err)
	}
	return sink.Bytes(), nil
}

// Unmarshal deserializes MessagePack bytes into v, which must be a
// pointer to interface{} or to msgpack.Value.
func (c *MessagePackCodec) Unmarshal(data []byte, v interface{}) error {
	mv, err := msgpack.Decode(data)
	if err != nil {
		return fmt.Errorf("packrpc: msgpack unmarshal: %w", err)
	}
	switch dst := v.(type) {
	case *msgpack.Value:
		*dst = mv
		return nil
	case *interface{}:
		*dst = fromValue(mv)
		return nil
	default:
		return fmt.Errorf("packrpc: msgpack unmarshal: unsupported destination type %T", v)
	}
}

// Name returns the name of the codec.
func (c *MessagePackCodec) Name() string {
	return "msgpack"
}

// ToMessagePackValue converts a plain Go value (as produced by
// encoding/json decoding into interface{}) into a msgpack.Value, for
// callers outside this package that need the same conversion the codec
// uses internally.
func ToMessagePackValue(v interface{}) (msgpack.Value, error) {
	return toValue(v)
}

// FromMessagePackValue converts a msgpack.Value into the plain Go value
// fromValue would produce, for callers outside this package.
func FromMessagePackValue(v msgpack.Value) interface{} {
	return fromValue(v)
}

// toValue converts a plain Go value into a msgpack.Value. Map keys must
// be strings; any other shape is rejected rather than silently coerced.
func toValue(v interface{}) (msgpack.Value, error) {
	switch x := v.(type) {
	case nil:
		return msgpack.Nil{}, nil
	case msgpack.Value:
		return x, nil
	case bool:
		return msgpack.Bool(x), nil
	case int:
		return msgpack.Int(int64(x)), nil
	case int8:
		return msgpack.Int(int64(x)), nil
	case int16:
		return msgpack.Int(int64(x)), nil
	case int32:
		return msgpack.Int(int64(x)), nil
	case int64:
		return msgpack.Int(x), nil
	case uint:
		return msgpack.Uint(uint64(x)), nil
	case uint8:
		return msgpack.Uint(uint64(x)), nil
	case uint16:
		return msgpack.Uint(uint64(x)), nil
	case uint32:
		return msgpack.Uint(uint64(x)), nil
	case uint64:
		return msgpack.Uint(x), nil
	case float32:
		return msgpack.Float(float64(x)), nil
	case float64:
		return msgpack.Float(x), nil
	case string:
		return msgpack.Str(x), nil
	case []byte:
		return msgpack.Bin(x), nil
	case []interface{}:
		arr := make(msgpack.Array, len(x))
		for i, elem := range x {
			mv, err := toValue(elem)
			if err != nil {
				return nil, err
			}
			arr[i] = mv
		}
		return arr, nil
	case map[string]interface{}:
		m := make(msgpack.Map, 0, len(x))
		for k, elem := range x {
			mv, err := toValue(elem)
			if err != nil {
				return nil, err
			}
			m = append(m, msgpack.MapEntry{Key: k, Value: mv})
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported Go type %T for msgpack encoding", v)
	}
}

// fromValue converts a msgpack.Value into plain Go values: map[string]interface{},
// []interface{}, string, []byte, bool, int64, uint64, float64, or nil.
func fromValue(v msgpack.Value) interface{} {
	switch x := v.(type) {
	case msgpack.Nil:
		return nil
	case msgpack.Bool:
		return bool(x)
	case msgpack.Int:
		return int64(x)
	case msgpack.Uint:
		return uint64(x)
	case msgpack.Float:
		return float64(x)
	case msgpack.Str:
		return string(x)
	case msgpack.Bin:
		return []byte(x)
	case msgpack.Array:
		out := make([]interface{}, len(x))
		for i, elem := range x {
			out[i] = fromValue(elem)
		}
		return out
	case msgpack.Map:
		out := make(map[string]interface{}, len(x))
		for _, entry := range x {
			out[entry.Key] = fromValue(entry.Value)
		}
		return out
	case msgpack.Ext:
		return x
	default:
		return x
	}
}
