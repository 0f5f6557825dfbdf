package template

import (
	"fmt"
	"strings"
)

// FilterPrefix is prepended to a filter name to form the global it is
// registered under: x | trim becomes __filter_trim(x).
const FilterPrefix = "__filter_"

// TestPrefix does the same for tests: x is defined becomes __test_defined(x).
const TestPrefix = "__test_"

// operatorKeywords are identifiers that end the current operand.
var operatorKeywords = map[string]bool{
	"and":    true,
	"or":     true,
	"not":    true,
	"in":     true,
	"if":     true,
	"else":   true,
	"for":    true,
	"lambda": true,
}

// translateExpr rewrites the filter pipelines, tests and ~ concatenations
// in a template expression into Starlark calls. A filter or test binds to
// the operand directly before it, so a + b | f(1) becomes
// a + __filter_f(b, 1). a ~ b converts both operands to strings before
// adding them. known reports whether a filter exists; a nil known accepts
// every name.
func translateExpr(src string, known func(string) bool) (string, error) {
	if !strings.ContainsAny(src, "|~") && !strings.Contains(src, "is") {
		return src, nil
	}
	return translate(src, known)
}

// translate walks src once, copying it to the output and tracking where the
// current operand starts so that a following filter can wrap it.
func translate(src string, known func(string) bool) (string, error) {
	var buf []byte
	operandStart := 0
	afterOperand := false // the last token ended an operand
	attribute := false    // a '.' follows an operand, so the next name continues it
	concatStart := -1     // start of the right operand of a pending ~
	concatDone := false   // the operand before a ~ is already a string

	// closeConcat wraps the pending right operand of a ~ in a string
	// conversion.
	closeConcat := func() {
		if concatStart < 0 {
			return
		}
		operand := strings.TrimRight(string(buf[concatStart:]), " \t\r\n")
		trailing := string(buf[concatStart+len(operand):])
		buf = append(buf[:concatStart], stringCall(operand)+trailing...)
		operandStart = concatStart
		concatStart = -1
		concatDone = true
	}

	for i := 0; i < len(src); {
		c := src[i]
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' && c != '~' {
			concatDone = false
		}

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			buf = append(buf, c)
			i++

		case c == '~':
			closeConcat()
			if !afterOperand {
				return "", fmt.Errorf("'~' has no left operand")
			}
			left := strings.TrimSpace(string(buf[operandStart:]))
			if !concatDone {
				left = stringCall(left)
			}
			buf = append(buf[:operandStart], left+" + "...)
			concatStart = len(buf)
			i = skipSpace(src, i+1)
			afterOperand, attribute, concatDone = false, false, false

		case c == '"' || c == '\'':
			end, err := scanString(src, i)
			if err != nil {
				return "", err
			}
			if !afterOperand {
				operandStart = len(buf)
			}
			buf = append(buf, src[i:end]...)
			i = end
			afterOperand, attribute = true, false

		case isIdentStart(c):
			end := scanIdent(src, i)
			word := src[i:end]
			if word == "is" && afterOperand && !attribute {
				next, call, err := applyTest(src, end, string(buf[operandStart:]), known)
				if err != nil {
					return "", err
				}
				buf = append(buf[:operandStart], call...)
				i = next
				continue
			}
			if operatorKeywords[word] && !attribute {
				closeConcat()
				buf = append(buf, word...)
				afterOperand = false
			} else {
				if !attribute {
					operandStart = len(buf)
				}
				buf = append(buf, word...)
				afterOperand = true
			}
			attribute = false
			i = end

		case c >= '0' && c <= '9':
			end := scanNumber(src, i)
			if !afterOperand {
				operandStart = len(buf)
			}
			buf = append(buf, src[i:end]...)
			i = end
			afterOperand, attribute = true, false

		case c == '.':
			buf = append(buf, c)
			attribute = afterOperand
			afterOperand = false
			i++

		case c == '(' || c == '[' || c == '{':
			end, err := matchBracket(src, i)
			if err != nil {
				return "", err
			}
			inner, err := translate(src[i+1:end], known)
			if err != nil {
				return "", err
			}
			// A call or index continues the operand; anything else starts one.
			if !afterOperand || c == '{' {
				operandStart = len(buf)
			}
			buf = append(buf, c)
			buf = append(buf, inner...)
			buf = append(buf, src[end])
			i = end + 1
			afterOperand, attribute = true, false

		case c == '|':
			next, call, err := applyFilter(src, i+1, string(buf[operandStart:]), known)
			if err != nil {
				return "", err
			}
			buf = append(buf[:operandStart], call...)
			i = next
			afterOperand, attribute = true, false

		default:
			closeConcat()
			buf = append(buf, c)
			i++
			afterOperand, attribute = false, false
		}
	}
	if concatStart >= 0 && !afterOperand {
		return "", fmt.Errorf("'~' has no right operand")
	}
	closeConcat()

	return string(buf), nil
}

func stringCall(operand string) string {
	return FilterPrefix + "string(" + operand + ")"
}

// applyTest parses "[not] name" or "[not] name(args)" after "is", starting
// at i, and returns the position after it together with the call testing
// operand.
func applyTest(src string, i int, operand string, known func(string) bool) (int, string, error) {
	operand = strings.TrimSpace(operand)

	j := skipSpace(src, i)
	negate := false
	if end := scanIdent(src, j); src[j:end] == "not" {
		negate = true
		j = skipSpace(src, end)
	}
	if j >= len(src) || !isIdentStart(src[j]) {
		return 0, "", fmt.Errorf("expected test name after 'is'")
	}
	end := scanIdent(src, j)
	name := src[j:end]
	if !IsBuiltinTest(name) {
		return 0, "", fmt.Errorf("unknown test %q", name)
	}

	args := ""
	next := end
	if k := skipSpace(src, end); k < len(src) && src[k] == '(' {
		closing, err := matchBracket(src, k)
		if err != nil {
			return 0, "", err
		}
		inner, err := translateExpr(src[k+1:closing], known)
		if err != nil {
			return 0, "", err
		}
		args = strings.TrimSpace(inner)
		next = closing + 1
	}

	call := TestPrefix + name + "(" + operand
	if args != "" {
		call += ", " + args
	}
	call += ")"
	if negate {
		call = "(not " + call + ")"
	}
	return next, call, nil
}

// applyFilter parses "name" or "name(args)" starting at i and returns the
// position after it together with the call wrapping operand.
func applyFilter(src string, i int, operand string, known func(string) bool) (int, string, error) {
	operand = strings.TrimSpace(operand)

	j := skipSpace(src, i)
	if j >= len(src) || !isIdentStart(src[j]) {
		return 0, "", fmt.Errorf("expected filter name after '|'")
	}
	end := scanIdent(src, j)
	name := src[j:end]

	if known != nil && !known(name) {
		return 0, "", fmt.Errorf("unknown filter %q", name)
	}
	if operand == "" {
		return 0, "", fmt.Errorf("filter %q has no input", name)
	}

	args := ""
	next := end
	if k := skipSpace(src, end); k < len(src) && src[k] == '(' {
		closing, err := matchBracket(src, k)
		if err != nil {
			return 0, "", err
		}
		inner, err := translateExpr(src[k+1:closing], known)
		if err != nil {
			return 0, "", err
		}
		args = strings.TrimSpace(inner)
		next = closing + 1
	}

	call := FilterPrefix + name + "(" + operand
	if args != "" {
		call += ", " + args
	}
	return next, call + ")", nil
}

// matchBracket returns the index of the bracket closing the one at i.
func matchBracket(src string, i int) (int, error) {
	depth := 0
	for j := i; j < len(src); j++ {
		switch src[j] {
		case '"', '\'':
			end, err := scanString(src, j)
			if err != nil {
				return 0, err
			}
			j = end - 1
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return j, nil
			}
		}
	}
	return 0, fmt.Errorf("unclosed %q", src[i])
}

// scanString returns the index just past the string literal starting at i.
func scanString(src string, i int) (int, error) {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j + 1, nil
		}
	}
	return 0, fmt.Errorf("unterminated string literal")
}

func scanIdent(src string, i int) int {
	j := i
	for j < len(src) && isIdentPart(src[j]) {
		j++
	}
	return j
}

func scanNumber(src string, i int) int {
	j := i
	for j < len(src) && (isIdentPart(src[j]) || src[j] == '.') {
		j++
	}
	return j
}

func skipSpace(src string, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\n' || src[i] == '\r') {
		i++
	}
	return i
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// isIdentifier reports whether s is a valid variable name.
func isIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	return scanIdent(s, 0) == len(s)
}
