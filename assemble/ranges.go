package assemble

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wudi/privkit/apperr"
)

// Range is a one-based inclusive page range.
type Range struct {
	From int
	To   int
}

func (r Range) String() string {
	if r.From == r.To {
		return strconv.Itoa(r.From)
	}
	return fmt.Sprintf("%d-%d", r.From, r.To)
}

// Len is the number of pages in r.
func (r Range) Len() int { return r.To - r.From + 1 }

// ParseRanges parses a list such as "1-3,5,7-". An open end runs to the
// last page and an open start begins at page one.
func ParseRanges(spec string, pageCount int) ([]Range, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, apperr.Validation("no page ranges given")
	}
	var out []Range
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		r, err := parseRange(part, pageCount)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, apperr.Validation("no page ranges given")
	}
	return out, nil
}

func parseRange(part string, pageCount int) (Range, error) {
	bad := func(reason string) error {
		return apperr.Validation("invalid page range", fmt.Sprintf("%q: %s", part, reason))
	}
	from, to, isSpan := strings.Cut(part, "-")
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	r := Range{From: 1, To: pageCount}
	var err error
	if from != "" {
		if r.From, err = strconv.Atoi(from); err != nil {
			return Range{}, bad("not a number")
		}
	}
	switch {
	case !isSpan:
		r.To = r.From
	case to != "":
		if r.To, err = strconv.Atoi(to); err != nil {
			return Range{}, bad("not a number")
		}
	}
	if err := r.validate(pageCount); err != nil {
		return Range{}, bad(err.Error())
	}
	return r, nil
}

func (r Range) validate(pageCount int) error {
	switch {
	case r.From < 1:
		return fmt.Errorf("pages start at 1")
	case r.To > pageCount:
		return fmt.Errorf("document has %d pages", pageCount)
	case r.From > r.To:
		return fmt.Errorf("start after end")
	}
	return nil
}
