// Package codec holds the byte encodings used for snapshots and CLI output.
package codec

import (
	"encoding/json"
	"fmt"
)

type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSON is the compact wire/storage encoding.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSON) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

// IndentedJSON is for humans (CLI output, debugging dumps).
type IndentedJSON struct{}

func (IndentedJSON) Marshal(v any) ([]byte, error)   { return json.MarshalIndent(v, "", "  ") }
func (IndentedJSON) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

// Decode unmarshals data into a fresh T.
func Decode[T any](c Codec, data []byte) (out T, err error) {
	if err = c.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode %T: %w", out, err)
	}
	return out, nil
}
