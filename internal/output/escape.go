package output

import (
	"strconv"
	"strings"
)

// DecodeEscapes interprets backslash escapes typed on a command line, so that
// a separator given as `\n--{{index}}--\n` contains real newlines. Supported
// escapes are those of Go string literals (\n, \t, \\, \xhh, \uXXXX, octal)
// plus \' and \". Numeric escapes denote code points. Unknown escapes are kept
// as written.
func DecodeEscapes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for {
		i := strings.IndexByte(s, '\\')
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		s = s[i:]

		if len(s) > 1 && (s[1] == '\'' || s[1] == '"') {
			b.WriteByte(s[1])
			s = s[2:]
			continue
		}

		value, _, tail, err := strconv.UnquoteChar(s, 0)
		if err != nil {
			b.WriteByte('\\')
			s = s[1:]
			continue
		}
		b.WriteRune(value)
		s = tail
	}
}
