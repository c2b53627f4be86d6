// Package textlist applies line-oriented operations to text: splitting,
// de-duplication, sorting, case conversion, numbering and statistics.
package textlist

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/wudi/privkit/apperr"
)

// Split breaks text into lines. "\r\n", "\r" and "\n" all end a line; a
// trailing newline does not add an empty line.
func Split(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

// Join is the inverse of Split.
func Join(lines []string) string { return strings.Join(lines, "\n") }

type DedupeOptions struct {
	IgnoreCase bool
	// Trim compares lines without surrounding whitespace.
	Trim bool
	// Normalize compares lines in Unicode NFC, so precomposed and
	// combining forms of the same text match.
	Normalize bool
}

func (o DedupeOptions) key(s string) string {
	if o.Trim {
		s = strings.TrimSpace(s)
	}
	if o.Normalize {
		s = norm.NFC.String(s)
	}
	if o.IgnoreCase {
		s = cases.Fold().String(s)
	}
	return s
}

// Deduplicate keeps the first occurrence of every line, in order.
func Deduplicate(lines []string, opts DedupeOptions) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		k := opts.key(l)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, l)
	}
	return out
}

type Case int

const (
	Upper Case = iota
	Lower
	// Title capitalizes every word.
	Title
	// Sentence capitalizes the first letter of each line and lowercases
	// the rest.
	Sentence
)

// ParseCase accepts "upper", "lower", "title" and "sentence".
func ParseCase(s string) (Case, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upper":
		return Upper, nil
	case "lower":
		return Lower, nil
	case "title":
		return Title, nil
	case "sentence":
		return Sentence, nil
	}
	return 0, apperr.Validation("unknown case", s)
}

// ConvertCase converts every line with the casing rules of lang, so that
// Turkish dotted and dotless i or German ß are handled.
func ConvertCase(lines []string, c Case, lang language.Tag) []string {
	var caser cases.Caser
	switch c {
	case Upper:
		caser = cases.Upper(lang)
	case Lower, Sentence:
		caser = cases.Lower(lang)
	case Title:
		caser = cases.Title(lang)
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = caser.String(l)
		if c == Sentence {
			out[i] = capitalizeFirst(out[i], lang)
		}
	}
	return out
}

// capitalizeFirst upper-cases the first letter, skipping leading spaces
// and punctuation.
func capitalizeFirst(s string, lang language.Tag) string {
	for i, r := range s {
		if unicode.IsLetter(r) {
			n := len(string(r))
			return s[:i] + cases.Upper(lang).String(s[i:i+n]) + s[i+n:]
		}
	}
	return s
}

// Trim removes surrounding whitespace from every line.
func Trim(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimSpace(l)
	}
	return out
}

// RemoveEmpty drops lines that are empty or only whitespace.
func RemoveEmpty(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

func Reverse(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[len(lines)-1-i] = l
	}
	return out
}

func AddPrefixSuffix(lines []string, prefix, suffix string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = prefix + l + suffix
	}
	return out
}

// Number prefixes lines with a running count from start, right-aligned to
// the widest number: Number(lines, 1, ". ") gives " 9. x", "10. y".
func Number(lines []string, start int, sep string) []string {
	if len(lines) == 0 {
		return nil
	}
	width := len(fmt.Sprint(start + len(lines) - 1))
	if w := len(fmt.Sprint(start)); w > width {
		width = w
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = fmt.Sprintf("%*d%s%s", width, start+i, sep, l)
	}
	return out
}

type Stats struct {
	Total    int
	NonEmpty int
	// Unique counts distinct lines, empty lines included.
	Unique     int
	Duplicates int
	Characters int
	Words      int
}

func ComputeStats(lines []string) Stats {
	st := Stats{Total: len(lines)}
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			st.NonEmpty++
		}
		if _, dup := seen[l]; dup {
			st.Duplicates++
		} else {
			seen[l] = struct{}{}
		}
		st.Characters += len([]rune(l))
		st.Words += len(strings.Fields(l))
	}
	st.Unique = len(seen)
	return st
}
