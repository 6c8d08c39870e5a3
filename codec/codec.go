// Package codec defines the interface every wire format implements
// (Encode/Decode/ContentType) plus a name-keyed registry, modeled closely
// on the teacher's encoding.Codec/RegisterCodec/GetCodec pattern.
package codec

import "strings"

// Codec converts typed values to bytes and back. Implementations must be
// safe for concurrent use.
type Codec interface {
	// Encode returns the wire representation of v.
	Encode(v interface{}) ([]byte, error)
	// Decode parses data into v.
	Decode(data []byte, v interface{}) error
	// ContentType names this codec's wire format. The result must be
	// static; it is used as part of the content-type on the wire.
	ContentType() string
}

var registry = make(map[string]Codec)

// Register registers c under its ContentType, lowercased. Panics on a nil
// codec or an empty ContentType, matching the teacher's RegisterCodec
// contract. Intended to be called during client construction, not
// concurrently with lookups.
func Register(c Codec) {
	if c == nil {
		panic("codec: cannot register a nil Codec")
	}
	name := strings.ToLower(c.ContentType())
	if name == "" {
		panic("codec: cannot register Codec with empty ContentType")
	}
	registry[name] = c
}

// Get returns the registered Codec for contentType, or nil if none is
// registered. contentType is matched case-insensitively.
func Get(contentType string) Codec {
	return registry[strings.ToLower(contentType)]
}
