// Package codec carries request and response values across process
// boundaries, currently the stdin/stdout of WASM handlers.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	ContentType() string
}

type jsonCodec struct {
	strict bool
}

var (
	// JSON rejects trailing content after the first value.
	JSON Codec = jsonCodec{}
	// JSONStrict additionally rejects unknown struct fields.
	JSONStrict Codec = jsonCodec{strict: true}
)

func (jsonCodec) Marshal(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (c jsonCodec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if c.strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return fmt.Errorf("json trailing content")
	}
	return nil
}

func (jsonCodec) ContentType() string { return "application/json" }

// DecodeValue decodes one JSON document into its generic form (map, slice,
// string, float64, bool or nil) so the caller can inspect the shape itself.
func DecodeValue(c Codec, data []byte) (any, error) {
	var v any
	if err := c.Unmarshal(bytes.TrimSpace(data), &v); err != nil {
		return nil, err
	}
	return v, nil
}
