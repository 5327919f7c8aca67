// Package hostname turns untrusted hostname candidates into DHCP-advertised
// container hostnames.
//
// This package owns hostname normalization (DNS label rules) and the
// Publisher, which pushes a validated hostname into a running container so both
// the container's local identity and its DHCP client advertise it.
package hostname

import (
	"errors"
	"fmt"
	"strings"
)

// MaxLength is the maximum hostname length, matching the DNS label limit.
const MaxLength = 63

// ErrInvalidHostname is returned when normalization produces an empty or
// over-length string.
var ErrInvalidHostname = errors.New("invalid hostname")

// Validated is a hostname that passed Normalize: lowercase letters, digits,
// and interior hyphens only, 1 to MaxLength characters.
// Construct values through Normalize; the zero value is not valid.
type Validated string

func (v Validated) String() string {
	return string(v)
}

// Normalize lowercases raw, strips every character outside [a-z0-9-], strips
// leading and trailing hyphens, and rejects empty or over-length results.
//
// Normalize is idempotent: applying it to an already-normalized value returns
// the value unchanged. The guest-side publish script applies the same rules
// independently before trusting the transported value.
func Normalize(raw string) (Validated, error) {
	lowered := strings.ToLower(raw)
	var b strings.Builder
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	cleaned := strings.Trim(b.String(), "-")
	if cleaned == "" {
		return "", fmt.Errorf("%w: empty after normalization", ErrInvalidHostname)
	}
	if len(cleaned) > MaxLength {
		return "", fmt.Errorf("%w: %d characters exceeds %d", ErrInvalidHostname, len(cleaned), MaxLength)
	}
	return Validated(cleaned), nil
}

// Validate reports whether v still satisfies the normalized-hostname invariant.
func (v Validated) Validate() error {
	normalized, err := Normalize(string(v))
	if err != nil {
		return err
	}
	if normalized != v {
		return fmt.Errorf("%w: %q is not normalized", ErrInvalidHostname, string(v))
	}
	return nil
}
