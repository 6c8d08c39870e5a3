// Package hybrid implements the HybridCodec from spec.md §4.4: on encode,
// try zero-copy first, falling back to self-describing and tagging the
// output; on decode, inspect the tag to route. This asymmetry matches the
// original implementation's behavior exactly (see DESIGN.md Open
// Questions) and is intentionally not configurable.
package hybrid

import (
	"github.com/cloud-shuttle/wsrpc/codec"
	"github.com/cloud-shuttle/wsrpc/codec/zerocopy"
	"github.com/cloud-shuttle/wsrpc/errs"
)

const (
	tagZeroCopy byte = 0x01
	tagSelfDescribing byte = 0x02
)

// Codec composes a zero-copy codec and a self-describing codec behind a
// single-byte tag prefix.
type Codec struct {
	zc *zerocopy.Codec
	sd codec.Codec
}

// New builds a HybridCodec from the given zero-copy and self-describing
// codecs.
func New(zc *zerocopy.Codec, sd codec.Codec) *Codec {
	return &Codec{zc: zc, sd: sd}
}

func (c *Codec) Encode(v interface{}) ([]byte, error) {
	if b, err := c.zc.Encode(v); err == nil {
		return append([]byte{tagZeroCopy}, b...), nil
	}
	b, err := c.sd.Encode(v)
	if err != nil {
		return nil, errs.NewCodecError(errs.SerializationFailed, err)
	}
	return append([]byte{tagSelfDescribing}, b...), nil
}

func (c *Codec) Decode(data []byte, v interface{}) error {
	if len(data) == 0 {
		return errs.NewCodecError(errs.DeserializationFailed, errEmptyPayload)
	}
	tag, body := data[0], data[1:]

	// Decode routes on the tag and falls back to the other codec if the
	// tagged one fails. Only a payload with no known tag is tried
	// self-describing first — the reverse order from Encode, per the
	// original's asymmetric contract.
	switch tag {
	case tagSelfDescribing:
		if err := c.sd.Decode(body, v); err == nil {
			return nil
		}
		return c.zc.Decode(body, v)
	case tagZeroCopy:
		if err := c.zc.Decode(body, v); err == nil {
			return nil
		}
		return c.sd.Decode(body, v)
	default:
		// Unknown tag: still try self-describing first to match the
		// documented decode-side preference.
		if err := c.sd.Decode(data, v); err == nil {
			return nil
		}
		return c.zc.Decode(data, v)
	}
}

func (c *Codec) ContentType() string { return "application/hybrid" }

var errEmptyPayload = &emptyPayloadError{}

type emptyPayloadError struct{}

func (*emptyPayloadError) Error() string { return "hybrid: empty payload" }

var _ codec.Codec = (*Codec)(nil)
