// Package color applies a per-command color policy to captured output
// before it is displayed or exported.
package color

import (
	"fmt"
	"strings"
)

// Policy decides what happens to embedded ANSI color markup in captured
// output.
type Policy int

const (
	// PolicyANSI passes output through unchanged.
	PolicyANSI Policy = iota
	// PolicyDecode keeps color information in the destination's native
	// form and drops every other escape sequence.
	PolicyDecode
	// PolicyStrip removes all escape sequences.
	PolicyStrip
)

var policyNames = []string{"ansi", "decode", "strip"}

// ParsePolicy parses a policy name, case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	for i, name := range policyNames {
		if strings.EqualFold(s, name) {
			return Policy(i), nil
		}
	}
	return PolicyANSI, fmt.Errorf("unknown color policy %q", s)
}

func (p Policy) String() string {
	if p < 0 || int(p) >= len(policyNames) {
		return "ansi"
	}
	return policyNames[p]
}

// Transform variants. Output re-injected into a surface or pipe uses the
// surface variant; everything else uses the plain variant.
const (
	VariantSurface = "surface_decode_ansi"
	VariantPlain   = "decode_ansi"
)

// Modifier is the text-markup transform collaborator. keepColors
// distinguishes decoding from stripping.
type Modifier interface {
	Transform(variant string, keepColors bool, text string) (string, error)
}

// Decoder applies a command's color policy to buffered text at
// finalization time.
type Decoder struct {
	mod Modifier
}

// NewDecoder creates a decoder backed by the given modifier.
func NewDecoder(mod Modifier) *Decoder {
	return &Decoder{mod: mod}
}

// Decode transforms text according to the policy. injected marks output
// destined for a surface injection or a pipe, which selects the surface
// transform variant. An empty input stays empty; a transform failure is
// reported so callers can treat it as "nothing to display".
func (d *Decoder) Decode(policy Policy, injected bool, text string) (string, error) {
	if text == "" {
		return "", nil
	}
	if policy == PolicyANSI {
		return text, nil
	}

	variant := VariantPlain
	if injected {
		variant = VariantSurface
	}
	return d.mod.Transform(variant, policy == PolicyDecode, text)
}
