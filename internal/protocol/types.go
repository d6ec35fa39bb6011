// Package protocol defines the request/response envelope exchanged over
// an RPC connection and its MessagePack wire representation.
package protocol

import (
	"fmt"

	"github.com/hexwire/packrpc/pkg/msgpack"
)

// Request is one RPC call: an ID used to correlate it with its Response,
// the method name to invoke, and an arbitrary MessagePack body.
type Request struct {
	ID     uint64
	Method string
	Body   msgpack.Value
}

// Response carries the outcome of a Request with the same ID. When OK is
// false, ErrorMsg describes the failure and Body is typically Nil{}.
type Response struct {
	ID       uint64
	OK       bool
	Body     msgpack.Value
	ErrorMsg string
}

const (
	fieldID       = "id"
	fieldMethod   = "method"
	fieldBody     = "body"
	fieldOK       = "ok"
	fieldErrorMsg = "error"
)

// Marshal encodes the request as a MessagePack map.
func (r *Request) Marshal() ([]byte, error) {
	v := msgpack.Map{
		{Key: fieldID, Value: msgpack.Uint(r.ID)},
		{Key: fieldMethod, Value: msgpack.Str(r.Method)},
		{Key: fieldBody, Value: valueOrNil(r.Body)},
	}
	sink, err := msgpack.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal request: %w", err)
	}
	return sink.Bytes(), nil
}

// UnmarshalRequest decodes a MessagePack-encoded Request.
func UnmarshalRequest(data []byte) (*Request, error) {
	v, err := msgpack.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("protocol: unmarshal request: %w", err)
	}
	m, ok := v.(msgpack.Map)
	if !ok {
		return nil, fmt.Errorf("protocol: request envelope is not a map, got %T", v)
	}

	id, err := requireUint(m, fieldID)
	if err != nil {
		return nil, err
	}
	method, err := requireStr(m, fieldMethod)
	if err != nil {
		return nil, err
	}
	body, _ := m.Get(fieldBody)
	if body == nil {
		body = msgpack.Nil{}
	}
	return &Request{ID: id, Method: method, Body: body}, nil
}

// Marshal encodes the response as a MessagePack map.
func (r *Response) Marshal() ([]byte, error) {
	v := msgpack.Map{
		{Key: fieldID, Value: msgpack.Uint(r.ID)},
		{Key: fieldOK, Value: msgpack.Bool(r.OK)},
		{Key: fieldBody, Value: valueOrNil(r.Body)},
		{Key: fieldErrorMsg, Value: msgpack.Str(r.ErrorMsg)},
	}
	sink, err := msgpack.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal response: %w", err)
	}
	return sink.Bytes(), nil
}

// UnmarshalResponse decodes a MessagePack-encoded Response.
func UnmarshalResponse(data []byte) (*Response, error) {
	v, err := msgpack.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("protocol: unmarshal response: %w", err)
	}
	m, ok := v.(msgpack.Map)
	if !ok {
		return nil, fmt.Errorf("protocol: response envelope is not a map, got %T", v)
	}

	id, err := requireUint(m, fieldID)
	if err != nil {
		return nil, err
	}
	okVal, _ := m.Get(fieldOK)
	ok2, _ := okVal.(msgpack.Bool)
	body, _ := m.Get(fieldBody)
	if body == nil {
		body = msgpack.Nil{}
	}
	errMsg := ""
	if ev, present := m.Get(fieldErrorMsg); present {
		if s, ok := ev.(msgpack.Str); ok {
			errMsg = string(s)
		}
	}
	return &Response{ID: id, OK: bool(ok2), Body: body, ErrorMsg: errMsg}, nil
}

// Error returns the error reported by a failed response, or nil if OK.
func (r *Response) Error() error {
	if r.OK {
		return nil
	}
	return fmt.Errorf("%s", r.ErrorMsg)
}

func valueOrNil(v msgpack.Value) msgpack.Value {
	if v == nil {
		return msgpack.Nil{}
	}
	return v
}

func requireUint(m msgpack.Map, key string) (uint64, error) {
	v, ok := m.Get(key)
	if !ok {
		return 0, fmt.Errorf("protocol: missing field %q", key)
	}
	switch n := v.(type) {
	case msgpack.Uint:
		return uint64(n), nil
	case msgpack.Int:
		if n < 0 {
			return 0, fmt.Errorf("protocol: field %q is negative", key)
		}
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("protocol: field %q is not an integer, got %T", key, v)
	}
}

func requireStr(m msgpack.Map, key string) (string, error) {
	v, ok := m.Get(key)
	if !ok {
		return "", fmt.Errorf("protocol: missing field %q", key)
	}
	s, ok := v.(msgpack.Str)
	if !ok {
		return "", fmt.Errorf("protocol: field %q is not a string, got %T", key, v)
	}
	return string(s), nil
}
