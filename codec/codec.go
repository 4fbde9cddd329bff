// Package codec serializes outbound peer messages.
package codec

import "fmt"

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeGoJSON CodecType = 1
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=encoding/json, 1=goccy/go-json
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return &GoJSONCodec{}
}

// ParseCodecType maps a config name onto a CodecType.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "", "gojson", "go-json":
		return CodecTypeGoJSON, nil
	case "json", "std":
		return CodecTypeJSON, nil
	default:
		return 0, fmt.Errorf("unknown codec: %q", name)
	}
}

func (t CodecType) String() string {
	if t == CodecTypeJSON {
		return "json"
	}
	return "gojson"
}
