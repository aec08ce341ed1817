// Copyright (C) 2024 The REPE Authors.

package repe

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	segjson "github.com/segmentio/encoding/json"
)

// Codec encodes and decodes values for a single BodyFormat. It is the
// narrow interface through which JSON and BEVE encoders/decoders — declared
// out of scope as external collaborators in the package overview — are
// consumed; callers may register their own Codec for BodyJSON/BodyBEVE (or
// for a custom format >= BodyCustomBase) to swap implementations.
type Codec interface {
	// Encode converts v into its wire bytes.
	Encode(v any) ([]byte, error)
	// Decode converts wire bytes back into a generic Go value.
	Decode(data []byte) (any, error)
}

// TypedCodec is a Codec that can also decode into a caller-supplied shape,
// as required by Message.ParseBodyAs. JSON and CBOR codecs implement this;
// UTF8 and RawBinary do not, since "decode as T" is meaningless for them.
type TypedCodec interface {
	Codec
	DecodeAs(data []byte, out any) error
}

// CodecSet maps a BodyFormat to the Codec responsible for it.
type CodecSet map[BodyFormat]Codec

// DefaultCodecs returns the built-in codec set: JSON (segmentio/encoding,
// a drop-in faster encoding/json), BEVE (backed by CBOR, a real ecosystem
// binary codec standing in for Glaze's BEVE format — see SPEC_FULL.md),
// UTF8 (identity on strings), and RawBinary (identity on bytes).
func DefaultCodecs() CodecSet {
	return CodecSet{
		BodyJSON:      jsonCodec{},
		BodyBEVE:      newCBORCodec(),
		BodyUTF8:      utf8Codec{},
		BodyRawBinary: rawBinaryCodec{},
	}
}

// With returns a copy of cs with format bound to codec, leaving cs itself
// unmodified. Use it to override or extend DefaultCodecs().
func (cs CodecSet) With(format BodyFormat, codec Codec) CodecSet {
	out := make(CodecSet, len(cs)+1)
	for k, v := range cs {
		out[k] = v
	}
	out[format] = codec
	return out
}

func (cs CodecSet) lookup(format BodyFormat) (Codec, error) {
	c, ok := cs[format]
	if !ok {
		return nil, wireErrorf(InvalidBody, "no codec registered for body format %d", format)
	}
	return c, nil
}

// Encode encodes v under format using the codec registered in cs, failing
// with InvalidBody if none is registered.
func (cs CodecSet) Encode(v any, format BodyFormat) ([]byte, error) {
	c, err := cs.lookup(format)
	if err != nil {
		return nil, err
	}
	data, err := c.Encode(v)
	if err != nil {
		return nil, wireErrorf(InvalidBody, "encode: %v", err)
	}
	return data, nil
}

type jsonCodec struct{}

func (jsonCodec) Encode(v any) ([]byte, error) { return segjson.Marshal(v) }
func (jsonCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := segjson.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
func (jsonCodec) DecodeAs(data []byte, out any) error { return segjson.Unmarshal(data, out) }

// cborCodec implements the BodyBEVE format using CBOR (RFC 8949) in
// canonical (deterministic) mode, grounded on the Codec pattern used by
// urands-ttmesh's pkg/protocol/codec package.
type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() cborCodec {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("repe: building canonical CBOR encoder: %v", err))
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("repe: building CBOR decoder: %v", err))
	}
	return cborCodec{enc: enc, dec: dec}
}

func (c cborCodec) Encode(v any) ([]byte, error) { return c.enc.Marshal(v) }
func (c cborCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := c.dec.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
func (c cborCodec) DecodeAs(data []byte, out any) error { return c.dec.Unmarshal(data, out) }

// utf8Codec implements BodyUTF8: values are plain strings (or []byte),
// stored on the wire without further encoding.
type utf8Codec struct{}

func (utf8Codec) Encode(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return []byte(t), nil
	case []byte:
		return t, nil
	default:
		return nil, fmt.Errorf("utf8 codec: cannot encode %T", v)
	}
}
func (utf8Codec) Decode(data []byte) (any, error) { return string(data), nil }

// rawBinaryCodec implements BodyRawBinary: encoding an arbitrary value
// requires it already be a byte sequence, per SPEC_FULL.md §4.2.
type rawBinaryCodec struct{}

func (rawBinaryCodec) Encode(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, wireErrorf(InvalidBody, "raw binary codec: value is %T, not []byte", v)
	}
	return b, nil
}
func (rawBinaryCodec) Decode(data []byte) (any, error) { return data, nil }
