package hybrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloud-shuttle/wsrpc/codec"
	"github.com/cloud-shuttle/wsrpc/codec/zerocopy"
)

type payload struct {
	Name string `json:"name" cbor:"name"`
}

func TestHybridEncodeTagsZeroCopyFirst(t *testing.T) {
	h := New(zerocopy.New(), codec.SelfDescribingCodec{})

	b, err := h.Encode(payload{Name: "a"})
	require.NoError(t, err)
	require.NotEmpty(t, b)
	assert.Equal(t, byte(tagZeroCopy), b[0], "Encode should prefer zero-copy per the documented asymmetry")

	var out payload
	require.NoError(t, h.Decode(b, &out))
	assert.Equal(t, "a", out.Name)
}

func TestHybridDecodeRejectsEmptyPayload(t *testing.T) {
	h := New(zerocopy.New(), codec.SelfDescribingCodec{})
	err := h.Decode(nil, &payload{})
	require.Error(t, err)
}
