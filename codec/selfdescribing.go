package codec

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/cloud-shuttle/wsrpc/errs"
)

// SelfDescribingCodec is the textual, human-readable universal baseline
// codec. Backed by json-iterator, an API-compatible drop-in for
// encoding/json used the same way across the wider ecosystem.
type SelfDescribingCodec struct{}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

func (SelfDescribingCodec) Encode(v interface{}) ([]byte, error) {
	b, err := jsonAPI.Marshal(v)
	if err != nil {
		return nil, errs.NewCodecError(errs.SerializationFailed, err)
	}
	return b, nil
}

func (SelfDescribingCodec) Decode(data []byte, v interface{}) error {
	if err := jsonAPI.Unmarshal(data, v); err != nil {
		return errs.NewCodecError(errs.DeserializationFailed, err)
	}
	return nil
}

func (SelfDescribingCodec) ContentType() string { return "application/json" }

var _ Codec = SelfDescribingCodec{}

// SelfDescribingCodec is the one codec registered unconditionally: every
// other variant lives in its own subpackage precisely so hosts that never
// import it pay no registration cost, but JSON is the universal baseline
// spec.md §4.4 falls back to, so it is always present in the registry.
func init() {
	Register(SelfDescribingCodec{})
}
