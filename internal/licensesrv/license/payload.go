// Package license defines the signed license artifact: the payload, its
// canonical encoding, and the RSA-PSS signer that produces verifiable tokens.
// The canonical encoding is the load-bearing property here — the client
// verifier re-derives the exact signed bytes from the payload it receives, so
// the encoding must be deterministic down to the byte.
package license

import (
	"time"
)

// Product identity baked into every issued license.
const (
	Product = "CSpline Fusion Suite"
	Edition = "Professional"
)

// IssuedAtFormat is the one fixed textual form for timestamps in payloads:
// RFC 3339 with second precision, always UTC ("Z").
const IssuedAtFormat = time.RFC3339

// Licensee identifies the person a license was issued to.
type Licensee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Payload is the content of a signed license token. Field names in JSON are
// the wire contract with the client verifier and must not change.
// Expires is always null in the current scope but is rendered explicitly so
// the encoding stays stable when expiry support lands.
type Payload struct {
	Product   string   `json:"product"`
	Edition   string   `json:"edition"`
	Licensee  Licensee `json:"licensee"`
	MachineID string   `json:"machine_id"`
	IssuedAt  string   `json:"issued_at"`
	Expires   *string  `json:"expires"`
}

// Token is the externally returned artifact: the payload plus a base64
// signature over the payload's canonical encoding.
type Token struct {
	Payload Payload `json:"payload"`
	Sig     string  `json:"sig"`
}

// NewPayload builds a license payload for the given licensee and machine,
// stamped with issuedAt normalized to UTC seconds.
func NewPayload(name, email, machineID string, issuedAt time.Time) Payload {
	return Payload{
		Product: Product,
		Edition: Edition,
		Licensee: Licensee{
			Name:  name,
			Email: email,
		},
		MachineID: machineID,
		IssuedAt:  issuedAt.UTC().Truncate(time.Second).Format(IssuedAtFormat),
		Expires:   nil,
	}
}
