package warninglist

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var errUnsupportedFlag = errors.New("unsupported pattern flag")

// patternDelimiters maps the accepted opening delimiters to their closing
// counterpart. A pattern starting with "(", "[" or "." is always plain.
var patternDelimiters = map[byte]byte{
	'/': '/',
	'#': '#',
	'~': '~',
	'@': '@',
	'%': '%',
	'!': '!',
	'{': '}',
	'<': '>',
}

// compilePattern compiles a list pattern. Patterns written as "/body/flags"
// are unwrapped and their flags turned into inline flags; anything else is
// compiled as a plain Go pattern.
func compilePattern(raw string) (*regexp.Regexp, error) {
	body, flags, delimited := splitDelimited(raw)
	if !delimited {
		return regexp.Compile(raw)
	}

	var inline strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's', 'U':
			inline.WriteRune(f)
		case 'u', 'D':
			// UTF-8 is the default and $ never matches before a trailing newline.
		default:
			return nil, fmt.Errorf("%w %q in %q", errUnsupportedFlag, f, raw)
		}
	}
	if inline.Len() > 0 {
		body = "(?" + inline.String() + ")" + body
	}
	return regexp.Compile(body)
}

func splitDelimited(raw string) (body, flags string, ok bool) {
	if len(raw) < 2 {
		return "", "", false
	}
	closing, known := patternDelimiters[raw[0]]
	if !known {
		return "", "", false
	}

	end := strings.LastIndexByte(raw, closing)
	if end <= 0 {
		return "", "", false
	}
	flags = raw[end+1:]
	for _, r := range flags {
		if !unicode.IsLetter(r) {
			return "", "", false
		}
	}
	return raw[1:end], flags, true
}

func (es *EntrySet) matchRegex(value string) (string, bool) {
	for i, re := range es.patterns {
		if re.MatchString(value) {
			return es.values[i], true
		}
	}
	return "", false
}
