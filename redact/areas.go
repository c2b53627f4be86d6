package redact

import (
	"fmt"
	"math"
	"sort"

	"github.com/wudi/privkit/apperr"
	"github.com/wudi/privkit/coords"
)

// Area is a rectangle in top-left origin units of the page as displayed.
// PageNumber is one-based.
type Area struct {
	PageNumber int     `json:"pageNumber"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// ValidateAreas checks every area before any page is touched.
func ValidateAreas(areas []Area, pageCount int) error {
	if len(areas) == 0 {
		return apperr.Validation("no redaction areas")
	}
	for i, a := range areas {
		switch {
		case !finite(a.X, a.Y, a.Width, a.Height):
			return apperr.Validation("invalid redaction area", fmt.Sprintf("area %d: coordinates must be finite numbers", i))
		case a.Width <= 0:
			return apperr.Validation("invalid redaction area", fmt.Sprintf("area %d: width must be positive, got %g", i, a.Width))
		case a.Height <= 0:
			return apperr.Validation("invalid redaction area", fmt.Sprintf("area %d: height must be positive, got %g", i, a.Height))
		case a.PageNumber < 1 || a.PageNumber > pageCount:
			return apperr.Validation("invalid redaction area", fmt.Sprintf("area %d: page %d is outside 1..%d", i, a.PageNumber, pageCount))
		}
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// GroupByPage buckets areas by page, keeping input order within a page.
func GroupByPage(areas []Area) map[int][]Area {
	groups := make(map[int][]Area)
	for _, a := range areas {
		groups[a.PageNumber] = append(groups[a.PageNumber], a)
	}
	return groups
}

// SortedPages returns the page numbers of groups in ascending order.
func SortedPages(groups map[int][]Area) []int {
	pages := make([]int, 0, len(groups))
	for p := range groups {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// ToPDFSpace flips a onto a bottom-left origin: y' = pageHeight - y - h.
func ToPDFSpace(a Area, pageHeight float64) coords.Rect {
	return coords.ScreenToPDF(a.X, a.Y, a.Width, a.Height, pageHeight)
}

// viewToUser maps the displayed page (after /Rotate) back to the unrotated
// box, both relative to the box origin.
func viewToUser(rotate int, box coords.Box) coords.Matrix {
	w, h := box.Width(), box.Height()
	switch rotate {
	case 90:
		return coords.Matrix{0, 1, -1, 0, w, 0}
	case 180:
		return coords.Matrix{-1, 0, 0, -1, w, h}
	case 270:
		return coords.Matrix{0, -1, 1, 0, 0, h}
	}
	return coords.Identity()
}

// pageRects converts areas to user space for a page with the given visible
// box and rotation.
func pageRects(areas []Area, box coords.Box, rotate int) []coords.Rect {
	viewHeight := box.Height()
	if rotate == 90 || rotate == 270 {
		viewHeight = box.Width()
	}
	m := viewToUser(rotate, box).Multiply(coords.Translate(box.LLX, box.LLY))
	out := make([]coords.Rect, len(areas))
	for i, a := range areas {
		r := ToPDFSpace(a, viewHeight)
		if rotate != 0 || box.LLX != 0 || box.LLY != 0 {
			r = r.Transform(m)
		}
		out[i] = r
	}
	return out
}
