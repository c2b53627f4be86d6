package coords

import (
	"errors"
	"math"
)

// Matrix is a PDF affine transform [a b c d e f].
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Multiply returns m followed by o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2], m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2], m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4], m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, errors.New("matrix singular")
	}
	return Matrix{
		m[3] / det, -m[1] / det, -m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det, (m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }

// Rotate returns a counter-clockwise rotation by angle radians.
func Rotate(angle float64) Matrix {
	c, s := math.Cos(angle), math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// Rect is an axis-aligned rectangle anchored at its lower-left corner.
type Rect struct{ X, Y, W, H float64 }

// Normalize flips negative extents so W and H are non-negative.
func (r Rect) Normalize() Rect {
	if r.W < 0 {
		r.X, r.W = r.X+r.W, -r.W
	}
	if r.H < 0 {
		r.Y, r.H = r.Y+r.H, -r.H
	}
	return r
}

// Transform maps r through m and returns the bounding box of the result.
func (r Rect) Transform(m Matrix) Rect {
	r = r.Normalize()
	pts := [4]Point{
		m.Transform(Point{r.X, r.Y}),
		m.Transform(Point{r.X + r.W, r.Y}),
		m.Transform(Point{r.X, r.Y + r.H}),
		m.Transform(Point{r.X + r.W, r.Y + r.H}),
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Box is a PDF rectangle array [llx lly urx ury].
type Box struct{ LLX, LLY, URX, URY float64 }

// BoxFromArray orders the corners of a four number array.
func BoxFromArray(v []float64) (Box, bool) {
	if len(v) != 4 {
		return Box{}, false
	}
	return Box{
		LLX: math.Min(v[0], v[2]), LLY: math.Min(v[1], v[3]),
		URX: math.Max(v[0], v[2]), URY: math.Max(v[1], v[3]),
	}, true
}

func (b Box) Width() float64  { return b.URX - b.LLX }
func (b Box) Height() float64 { return b.URY - b.LLY }
func (b Box) Rect() Rect      { return Rect{X: b.LLX, Y: b.LLY, W: b.Width(), H: b.Height()} }
func (b Box) Array() []float64 {
	return []float64{b.LLX, b.LLY, b.URX, b.URY}
}

// ScreenToPDF converts a top-left origin rectangle to PDF user space on a
// page of the given height.
func ScreenToPDF(x, y, w, h, pageHeight float64) Rect {
	return Rect{X: x, Y: pageHeight - y - h, W: w, H: h}
}
