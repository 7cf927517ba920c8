package grammar

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

type Range struct {
	Lo, Hi rune
}

// Class is a parsed character-class pattern.
type Class struct {
	Negated bool
	Ranges  []Range
}

// Contains reports whether r matches the class.
func (c Class) Contains(r rune) bool {
	in := false
	for _, rg := range c.Ranges {
		if r >= rg.Lo && r <= rg.Hi {
			in = true
			break
		}
	}
	return in != c.Negated
}

// ParseClass parses the text between the brackets of a character class.
// A leading ^ negates the class and a-z forms a range.
func ParseClass(pattern string) (Class, error) {
	var c Class
	i := 0
	if strings.HasPrefix(pattern, "^") {
		c.Negated = true
		i++
	}
	for i < len(pattern) {
		lo, n, err := classChar(pattern, i)
		if err != nil {
			return Class{}, err
		}
		i += n
		hi := lo
		if i+1 < len(pattern) && pattern[i] == '-' {
			hi, n, err = classChar(pattern, i+1)
			if err != nil {
				return Class{}, err
			}
			i += 1 + n
			if hi < lo {
				return Class{}, fmt.Errorf("invalid range %q-%q in character class", lo, hi)
			}
		}
		c.Ranges = append(c.Ranges, Range{Lo: lo, Hi: hi})
	}
	return c, nil
}

func classChar(s string, i int) (rune, int, error) {
	if s[i] == '\\' {
		return unescape(s, i)
	}
	r, n := utf8.DecodeRuneInString(s[i:])
	return r, n, nil
}

// Unescape decodes the escape sequences of a string literal body. As in Go,
// \xHH is a single byte while \u and \U are UTF-8 encoded code points.
func Unescape(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			i++
			continue
		}
		r, n, err := unescape(s, i)
		if err != nil {
			return "", err
		}
		if s[i+1] == 'x' {
			b.WriteByte(byte(r))
		} else {
			b.WriteRune(r)
		}
		i += n
	}
	return b.String(), nil
}

// unescape decodes the escape starting at s[i] == '\\' and returns the rune
// and the number of bytes consumed.
func unescape(s string, i int) (rune, int, error) {
	if i+1 >= len(s) {
		return 0, 0, fmt.Errorf("incomplete escape sequence")
	}
	switch c := s[i+1]; c {
	case 'n':
		return '\n', 2, nil
	case 'r':
		return '\r', 2, nil
	case 't':
		return '\t', 2, nil
	case 'v':
		return '\v', 2, nil
	case 'f':
		return '\f', 2, nil
	case 'a':
		return '\a', 2, nil
	case 'b':
		return '\b', 2, nil
	case '0':
		return 0, 2, nil
	case '\\', '"', '\'', '[', ']', '-', '^':
		return rune(c), 2, nil
	case 'x':
		return hexEscape(s, i, 2)
	case 'u':
		return hexEscape(s, i, 4)
	case 'U':
		return hexEscape(s, i, 8)
	default:
		return 0, 0, fmt.Errorf("unknown escape sequence \\%c", c)
	}
}

func hexEscape(s string, i, digits int) (rune, int, error) {
	end := i + 2 + digits
	if end > len(s) {
		return 0, 0, fmt.Errorf("escape \\%c needs %d hex digits", s[i+1], digits)
	}
	v, err := strconv.ParseUint(s[i+2:end], 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hex escape %q", s[i:end])
	}
	if !utf8.ValidRune(rune(v)) {
		return 0, 0, fmt.Errorf("escape %q is not a valid code point", s[i:end])
	}
	return rune(v), 2 + digits, nil
}
