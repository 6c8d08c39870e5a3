package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSelfDescribingCodecRoundTrip(t *testing.T) {
	c := SelfDescribingCodec{}
	in := sample{Name: "widget", Count: 3}

	b, err := c.Encode(in)
	require.NoError(t, err)

	var out sample
	require.NoError(t, c.Decode(b, &out))
	assert.Equal(t, in, out)
	assert.Equal(t, "application/json", c.ContentType())
}

func TestRegistryIsCaseInsensitiveAndHasJSONBaseline(t *testing.T) {
	// selfdescribing.go registers SelfDescribingCodec via init(), so it
	// must already be present without any explicit Register call here.
	got := Get("APPLICATION/JSON")
	require.NotNil(t, got)
	assert.Equal(t, "application/json", got.ContentType())
}

type emptyNameCodec struct{ SelfDescribingCodec }

func (emptyNameCodec) ContentType() string { return "" }

func TestRegisterPanicsOnNilOrEmptyName(t *testing.T) {
	assert.Panics(t, func() { Register(nil) })
	assert.Panics(t, func() { Register(emptyNameCodec{}) })
}
