// Package compress implements CompressedCodec from spec.md §4.4: wraps
// another codec, applying a dictionary-free compressor when the encoded
// size exceeds a threshold and passing through otherwise. The first byte of
// output indicates whether compression was applied.
package compress

import (
	"errors"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/cloud-shuttle/wsrpc/codec"
	"github.com/cloud-shuttle/wsrpc/errs"
)

const (
	flagPassthrough byte = 0x00
	flagCompressed  byte = 0x01
)

// Codec wraps an inner codec with size-threshold-gated zstd compression.
type Codec struct {
	inner     codec.Codec
	threshold int
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

// New builds a CompressedCodec over inner, compressing payloads whose
// encoded size exceeds threshold bytes.
func New(inner codec.Codec, threshold int) (*Codec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Codec{inner: inner, threshold: threshold, encoder: enc, decoder: dec}, nil
}

func (c *Codec) Encode(v interface{}) ([]byte, error) {
	b, err := c.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if len(b) <= c.threshold {
		return append([]byte{flagPassthrough}, b...), nil
	}
	compressed := c.encoder.EncodeAll(b, nil)
	return append([]byte{flagCompressed}, compressed...), nil
}

func (c *Codec) Decode(data []byte, v interface{}) error {
	if len(data) == 0 {
		return errs.NewCodecError(errs.DecompressionFailed, io.ErrUnexpectedEOF)
	}
	flag, body := data[0], data[1:]
	switch flag {
	case flagPassthrough:
		return c.inner.Decode(body, v)
	case flagCompressed:
		plain, err := c.decoder.DecodeAll(body, nil)
		if err != nil {
			return errs.NewCodecError(errs.DecompressionFailed, err)
		}
		return c.inner.Decode(plain, v)
	default:
		return errs.NewCodecError(errs.DecompressionFailed, errUnknownFlag)
	}
}

func (c *Codec) ContentType() string { return c.inner.ContentType() + "+zstd" }

var errUnknownFlag = errors.New("compress: unknown compression flag byte")

var _ codec.Codec = (*Codec)(nil)
