package color

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// AnsiModifier is the default Modifier. Stripping removes every escape
// sequence; decoding keeps SGR color sequences and drops the rest
// (cursor movement, OSC titles and other control sequences have no
// meaning on a surface).
type AnsiModifier struct{}

// NewAnsiModifier creates the default ANSI modifier.
func NewAnsiModifier() *AnsiModifier {
	return &AnsiModifier{}
}

// Transform implements Modifier. Both variants share the same ANSI
// grammar; the variant only matters to modifiers targeting surfaces with
// a non-ANSI native markup.
func (m *AnsiModifier) Transform(variant string, keepColors bool, text string) (string, error) {
	if !keepColors {
		return ansi.Strip(text), nil
	}
	return keepSGR(text), nil
}

// keepSGR walks the text sequence by sequence, keeping plain text and
// SGR sequences and dropping everything else.
func keepSGR(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	var state byte
	for len(text) > 0 {
		seq, _, n, newState := ansi.DecodeSequence(text, state, nil)
		if n == 0 {
			break
		}
		switch {
		case ansi.HasCsiPrefix(seq):
			if strings.HasSuffix(seq, "m") {
				b.WriteString(seq)
			}
		case ansi.HasOscPrefix(seq), ansi.HasDcsPrefix(seq), ansi.HasApcPrefix(seq), ansi.HasEscPrefix(seq):
			// dropped
		default:
			b.WriteString(seq)
		}
		text = text[n:]
		state = newState
	}
	return b.String()
}
