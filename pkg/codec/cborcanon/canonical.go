// Package cborcanon provides canonical CBOR encoding helpers. Record
// bodies are signed over their canonical encoding, so every peer must
// produce byte-identical serializations for the same value.
package cborcanon

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CanonicalMode is a CBOR encoding mode with deterministic settings:
// sorted map keys, shortest-form integers.
var CanonicalMode cbor.EncMode

func init() {
	var err error
	CanonicalMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create canonical CBOR mode: %v", err))
	}
}

// Marshal encodes v into canonical CBOR format.
func Marshal(v interface{}) ([]byte, error) {
	return CanonicalMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}

// MustMarshal encodes v into canonical CBOR and panics on failure. It is
// for values whose encodability is a structural invariant.
func MustMarshal(v interface{}) []byte {
	data, err := Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("canonical CBOR marshal failed: %v", err))
	}
	return data
}

// IsCanonical checks if the given CBOR bytes are in canonical form by
// decoding and re-encoding them.
func IsCanonical(data []byte) bool {
	var v interface{}
	if err := Unmarshal(data, &v); err != nil {
		return false
	}
	canonical, err := Marshal(v)
	if err != nil {
		return false
	}
	return bytes.Equal(data, canonical)
}
