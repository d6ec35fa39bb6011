package bench

import (
	"encoding/json"
	"fmt"
	"testing"

	goccyjson "github.com/goccy/go-json"
	segmentiojson "github.com/segmentio/encoding/json"
	vmsgpack "github.com/vmihailenco/msgpack/v5"

	"github.com/hexwire/packrpc/pkg/msgpack"
)

type benchPayload struct {
	name string
	data map[string]interface{}
}

func smallPayload() benchPayload {
	return benchPayload{"small", map[string]interface{}{"value": int64(42)}}
}

func mediumPayload() benchPayload {
	values := make([]interface{}, 50)
	for i := range values {
		values[i] = int64(i)
	}
	return benchPayload{"medium", map[string]interface{}{"values": values}}
}

func largePayload() benchPayload {
	values := make([]interface{}, 5000)
	for i := range values {
		values[i] = map[string]interface{}{"id": int64(i), "label": "item"}
	}
	return benchPayload{"large", map[string]interface{}{"values": values}}
}

func toValue(t *testing.B, v map[string]interface{}) msgpack.Value {
	t.Helper()
	mv, err := valueFromMap(v)
	if err != nil {
		t.Fatalf("convert payload: %v", err)
	}
	return mv
}

func valueFromMap(v map[string]interface{}) (msgpack.Value, error) {
	m := make(msgpack.Map, 0, len(v))
	for k, elem := range v {
		ev, err := valueFromAny(elem)
		if err != nil {
			return nil, err
		}
		m = append(m, msgpack.MapEntry{Key: k, Value: ev})
	}
	return m, nil
}

func valueFromAny(v interface{}) (msgpack.Value, error) {
	switch x := v.(type) {
	case int64:
		return msgpack.Int(x), nil
	case string:
		return msgpack.Str(x), nil
	case []interface{}:
		arr := make(msgpack.Array, len(x))
		for i, elem := range x {
			ev, err := valueFromAny(elem)
			if err != nil {
				return nil, err
			}
			arr[i] = ev
		}
		return arr, nil
	case map[string]interface{}:
		return valueFromMap(x)
	default:
		return nil, fmt.Errorf("unsupported type %T in benchmark payload", v)
	}
}

// BenchmarkCodecMarshal compares this module's MessagePack encoder against
// vmihailenco/msgpack/v5 and the three JSON backends wired into pkg/packrpc.
func BenchmarkCodecMarshal(b *testing.B) {
	payloads := []benchPayload{smallPayload(), mediumPayload(), largePayload()}

	for _, p := range payloads {
		b.Run(fmt.Sprintf("packrpc-msgpack/%s", p.name), func(b *testing.B) {
			mv := toValue(b, p.data)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := msgpack.Encode(mv); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run(fmt.Sprintf("vmihailenco-msgpack/%s", p.name), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := vmsgpack.Marshal(p.data); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run(fmt.Sprintf("encoding-json/%s", p.name), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := json.Marshal(p.data); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run(fmt.Sprintf("goccy-json/%s", p.name), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := goccyjson.Marshal(p.data); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run(fmt.Sprintf("segmentio-json/%s", p.name), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := segmentiojson.Marshal(p.data); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkCodecUnmarshal compares decode throughput the same way.
func BenchmarkCodecUnmarshal(b *testing.B) {
	payloads := []benchPayload{smallPayload(), mediumPayload(), largePayload()}

	for _, p := range payloads {
		mv := toValue(b, p.data)
		sink, err := msgpack.Encode(mv)
		if err != nil {
			b.Fatalf("encode fixture: %v", err)
		}
		packedBytes := sink.Bytes()

		vendorBytes, err := vmsgpack.Marshal(p.data)
		if err != nil {
			b.Fatalf("encode vendor fixture: %v", err)
		}

		jsonBytes, err := json.Marshal(p.data)
		if err != nil {
			b.Fatalf("encode json fixture: %v", err)
		}

		b.Run(fmt.Sprintf("packrpc-msgpack/%s", p.name), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := msgpack.Decode(packedBytes); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run(fmt.Sprintf("vmihailenco-msgpack/%s", p.name), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				var out map[string]interface{}
				if err := vmsgpack.Unmarshal(vendorBytes, &out); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run(fmt.Sprintf("encoding-json/%s", p.name), func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				var out map[string]interface{}
				if err := json.Unmarshal(jsonBytes, &out); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
