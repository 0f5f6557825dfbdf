package preprocess

import (
	"fmt"
	"strings"
)

// Mode selects how a template is rewritten before compilation.
type Mode string

// Mode constants.
const (
	ModeNone     Mode = "none"
	ModeBatchSQL Mode = "batch-sql"
)

// Modes lists the valid modes.
var Modes = []Mode{ModeNone, ModeBatchSQL}

// ParseMode parses a mode name. The empty string means ModeNone.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeNone:
		return ModeNone, nil
	case ModeBatchSQL:
		return ModeBatchSQL, nil
	default:
		return "", fmt.Errorf("unknown preprocess mode %q (valid: %s, %s)", s, ModeNone, ModeBatchSQL)
	}
}

// Batched reports whether templates rewritten by the mode expect a batch context.
func (m Mode) Batched() bool {
	return m == ModeBatchSQL
}

// Apply rewrites text according to the mode.
func (m Mode) Apply(text string) string {
	out, _ := m.Transform(text)
	return out
}

// Transform rewrites text and returns the INSERT statements it rewrote.
func (m Mode) Transform(text string) (string, []Statement) {
	if m != ModeBatchSQL {
		return text, nil
	}
	return NewPrefixer().Transform(text)
}

func (m Mode) String() string {
	return string(m)
}
