package textlist

import (
	"math/big"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type SortOptions struct {
	Descending bool
	IgnoreCase bool
	// Numeric orders lines by their leading number; lines without one
	// sort after all numbered lines.
	Numeric bool
	// Locale selects the collation; the zero tag compares by code point.
	Locale language.Tag
}

// Sort returns a sorted copy of lines. Equal lines keep their input order.
func Sort(lines []string, opts SortOptions) []string {
	out := slices.Clone(lines)
	cmp := opts.comparer()
	slices.SortStableFunc(out, func(a, b string) int {
		c := cmp(a, b)
		if opts.Descending {
			return -c
		}
		return c
	})
	return out
}

func (o SortOptions) comparer() func(a, b string) int {
	var text func(a, b string) int
	if o.Locale != language.Und {
		var copts []collate.Option
		if o.IgnoreCase {
			copts = append(copts, collate.IgnoreCase)
		}
		col := collate.New(o.Locale, copts...)
		text = func(a, b string) int { return col.CompareString(a, b) }
	} else if o.IgnoreCase {
		text = func(a, b string) int { return strings.Compare(strings.ToLower(a), strings.ToLower(b)) }
	} else {
		text = strings.Compare
	}
	if !o.Numeric {
		return text
	}
	return func(a, b string) int {
		na, okA := leadingNumber(a)
		nb, okB := leadingNumber(b)
		switch {
		case okA && okB:
			if c := na.Cmp(nb); c != 0 {
				return c
			}
		case okA:
			return -1
		case okB:
			return 1
		}
		return text(a, b)
	}
}

// leadingNumber parses an optionally signed decimal at the start of s,
// after leading whitespace.
func leadingNumber(s string) (*big.Rat, bool) {
	s = strings.TrimLeft(s, " \t")
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits, dot := 0, false
	for end < len(s) {
		c := s[end]
		if c >= '0' && c <= '9' {
			digits++
		} else if c == '.' && !dot {
			dot = true
		} else {
			break
		}
		end++
	}
	if digits == 0 {
		return nil, false
	}
	num := strings.TrimSuffix(s[:end], ".")
	r, ok := new(big.Rat).SetString(num)
	return r, ok
}
