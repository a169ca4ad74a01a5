// Package keygen generates license key strings. Keys carry 96 bits of
// entropy from crypto/rand, formatted as uppercase hex groups so they can be
// read over the phone or typed from a printed card. Uniqueness is ultimately
// enforced by the store's unique constraint; a collision there is handled by
// regenerating, not by failing the request.
package keygen

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
)

const (
	// Prefix identifies keys issued by this server.
	Prefix = "CSPLINE"

	groupCount = 3
	groupBytes = 4
)

// keyPattern matches a well-formed license key string.
var keyPattern = regexp.MustCompile(`^CSPLINE(-[0-9A-F]{8}){3}$`)

// Generate returns a new license key string of the form
// CSPLINE-XXXXXXXX-XXXXXXXX-XXXXXXXX. It panics only if the system's secure
// random source is unreadable, which is not a recoverable condition.
func Generate() string {
	var b strings.Builder
	b.WriteString(Prefix)
	buf := make([]byte, groupBytes)
	for i := 0; i < groupCount; i++ {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("keygen: unable to read random source: %v", err))
		}
		b.WriteByte('-')
		fmt.Fprintf(&b, "%02X%02X%02X%02X", buf[0], buf[1], buf[2], buf[3])
	}
	return b.String()
}

// IsWellFormed reports whether s has the shape of a generated license key.
// The store is the authority on whether a key exists; this only filters
// garbage before a lookup.
func IsWellFormed(s string) bool {
	return keyPattern.MatchString(s)
}
