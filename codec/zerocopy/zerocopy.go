// Package zerocopy implements the schema-driven binary codec from
// spec.md §4.4: consumers that hold the encoded buffer can read fields
// without an extra allocation.
//
// True zero-copy typed accessors (flatbuffers, capnproto) need
// schema-compiler-generated code; this codec instead leans on
// fxamacker/cbor's cbor.RawMessage, which lets a decoded envelope's
// sub-fields reference sub-slices of the original buffer rather than being
// copied out — the practical part of "zero-copy" a hand-written codec can
// honestly claim (see DESIGN.md).
package zerocopy

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/cloud-shuttle/wsrpc/codec"
	"github.com/cloud-shuttle/wsrpc/errs"
)

// Codec is the ZeroCopyCodec variant.
type Codec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// New builds a ZeroCopyCodec with canonical CBOR encoding (deterministic
// map key ordering, so encode(decode(x)) round-trips byte-for-byte).
func New() *Codec {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err) // invariant: CanonicalEncOptions() always yields a valid EncMode
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return &Codec{enc: enc, dec: dec}
}

func (c *Codec) Encode(v interface{}) ([]byte, error) {
	b, err := c.enc.Marshal(v)
	if err != nil {
		return nil, errs.NewCodecError(errs.SerializationFailed, err)
	}
	return b, nil
}

func (c *Codec) Decode(data []byte, v interface{}) error {
	if err := c.dec.Unmarshal(data, v); err != nil {
		return errs.NewCodecError(errs.DeserializationFailed, err)
	}
	return nil
}

func (c *Codec) ContentType() string { return "application/cbor" }

// RawField is a sub-slice of an encoded envelope, decodable on demand
// without touching the rest of the buffer. Mirrors cbor.RawMessage so
// callers can embed it in a struct field to defer decoding that field.
type RawField = cbor.RawMessage

var _ codec.Codec = (*Codec)(nil)
