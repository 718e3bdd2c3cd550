package schema

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec converts structured values to and from their stored form.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(b []byte) (any, error)
	// Binary reports whether the stored form is a byte string rather than text.
	Binary() bool
}

// JSON stores values as JSON text.
var JSON Codec = jsonCodec{}

// MsgPack stores values as MessagePack bytes.
var MsgPack Codec = msgpackCodec{}

type jsonCodec struct{}

func (jsonCodec) Name() string                  { return "JSON" }
func (jsonCodec) Binary() bool                  { return false }
func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(b []byte) (any, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string                  { return "MSGPACK" }
func (msgpackCodec) Binary() bool                  { return true }
func (msgpackCodec) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (msgpackCodec) Unmarshal(b []byte) (any, error) {
	var v any
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
