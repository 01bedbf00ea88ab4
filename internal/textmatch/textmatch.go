// Package textmatch normalizes free text and matches terms on token
// boundaries.
package textmatch

import (
	"strings"
	"unicode"
)

// Text is a normalized string: lowercase tokens separated by single spaces,
// padded with one space on each side.
type Text string

// Normalize lowercases s and turns every run of non-alphanumeric runes into a
// single space.
func Normalize(s string) Text {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(fields) == 0 {
		return " "
	}
	return Text(" " + strings.Join(fields, " ") + " ")
}

// Has reports whether term occurs in t as whole tokens. Multi-word terms
// must appear as a contiguous phrase.
func (t Text) Has(term string) bool {
	n := Normalize(term)
	if n == " " {
		return false
	}
	return strings.Contains(string(t), string(n))
}
