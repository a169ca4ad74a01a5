package license

import (
	"encoding/json"

	"github.com/anand-gl/jsoncanonicalizer"
)

// CanonicalEncode serializes a payload to its canonical byte form: object
// keys sorted lexicographically at every nesting level, no insignificant
// whitespace, null rendered explicitly for absent optional fields. The
// signature covers exactly these bytes, and any verifier must be able to
// reproduce them independently from the same payload (RFC 8785).
func CanonicalEncode(p Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return jsoncanonicalizer.Transform(raw)
}
