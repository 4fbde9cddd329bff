package codec

import (
	json "github.com/goccy/go-json"
)

// GoJSONCodec is a drop-in encoding/json replacement without the reflection
// overhead on hot paths. Output is byte-compatible with JSONCodec.
type GoJSONCodec struct{}

func (c *GoJSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *GoJSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *GoJSONCodec) Type() CodecType {
	return CodecTypeGoJSON
}
