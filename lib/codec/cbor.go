// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the cluster's CBOR encoding: Core
// Deterministic Encoding on the way out, permissive decoding on the
// way in. Event records written by the event logger use this codec so
// the same logical record always produces identical bytes, which keeps
// log diffing and deduplication honest.
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode encodes with Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding, no indefinite-length
// items.
var encMode cbor.EncMode

// decMode accepts standard CBOR and silently ignores unknown fields
// for forward compatibility with newer record revisions.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Event records decode into map[string]any when the consumer
		// has no schema. CBOR's default for any-typed targets is
		// map[interface{}]interface{}, which nothing downstream
		// accepts; force string keys instead. Struct decoding is
		// unaffected.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder is a CBOR stream encoder. Type alias so consumers import
// only lib/codec, not the cbor package directly.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is a raw encoded CBOR value, useful for passing records
// through without a decode/re-encode cycle.
type RawMessage = cbor.RawMessage

// NewEncoder returns a stream encoder writing deterministic CBOR to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
