// Package json registers a Codec backed by goccy/go-json, a drop-in
// encoding/json replacement with a faster marshal/unmarshal path.
package json

import (
	gojson "github.com/goccy/go-json"
)

type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) { return gojson.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }
