// Package cbor registers a Codec backed by fxamacker/cbor, used where a
// more compact binary encoding than JSON is preferred for on-disk index
// records (the L2 tier's metadata is a candidate: small, numeric-heavy
// structs that compress well under CBOR's binary framing).
package cbor

import (
	"github.com/fxamacker/cbor/v2"
)

type CBORCodec struct{}

func (CBORCodec) Name() string { return "cbor" }

func (CBORCodec) Marshal(v any) ([]byte, error) { return cbor.Marshal(v) }

func (CBORCodec) Unmarshal(data []byte, v any) error { return cbor.Unmarshal(data, v) }
