package codec

import (
	"encoding/json"
)

// JSONCodec renders records for humans and scripts. It is never used on the wire.
type JSONCodec struct {
	Indent bool
}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	if c.Indent {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
