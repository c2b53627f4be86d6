// Package geo reads geospatial registration from PDF pages: viewports
// whose /Measure dictionary ties page positions to latitude and
// longitude.
package geo

import (
	"errors"
	"math"

	"github.com/wudi/privkit/coords"
	"github.com/wudi/privkit/ir/raw"
)

var (
	ErrTooFewPoints = errors.New("need at least 3 control points for an affine transform")
	ErrCollinear    = errors.New("collinear control points")
)

// Viewport is a rectangular region of a page with its own measure.
type Viewport struct {
	BBox    coords.Box
	Name    string
	Measure *Measure
}

func (v *Viewport) Contains(x, y float64) bool {
	return x >= v.BBox.LLX && x <= v.BBox.URX && y >= v.BBox.LLY && y <= v.BBox.URY
}

// Locate maps a page position inside the viewport to latitude and
// longitude.
func (v *Viewport) Locate(x, y float64) (lat, lon float64, err error) {
	if v.Measure == nil || !v.Measure.IsGeo() {
		return 0, 0, errors.New("viewport has no geospatial measure")
	}
	w, h := v.BBox.Width(), v.BBox.Height()
	if w <= 0 || h <= 0 {
		return 0, 0, errors.New("empty viewport")
	}
	// LPTS are expressed in the unit square of the viewport.
	return v.Measure.Transform((x-v.BBox.LLX)/w, (y-v.BBox.LLY)/h)
}

// Measure is a /Measure dictionary. For /GEO measures GPTS holds
// latitude and longitude pairs matching the LPTS positions.
type Measure struct {
	Subtype string
	Bounds  []float64
	GCS     *CoordinateSystem
	GPTS    []float64
	LPTS    []float64
}

func (m *Measure) IsGeo() bool { return m != nil && m.Subtype == "GEO" }

// Transform maps (x, y) in LPTS space to (lat, lon) with the affine
// transform fixed by the first three control points.
func (m *Measure) Transform(x, y float64) (float64, float64, error) {
	if len(m.GPTS) < 6 || len(m.LPTS) < 6 {
		return 0, 0, ErrTooFewPoints
	}
	lx1, ly1 := m.LPTS[0], m.LPTS[1]
	lx2, ly2 := m.LPTS[2], m.LPTS[3]
	lx3, ly3 := m.LPTS[4], m.LPTS[5]

	det := lx1*(ly2-ly3) + lx2*(ly3-ly1) + lx3*(ly1-ly2)
	if math.Abs(det) < 1e-9 {
		return 0, 0, ErrCollinear
	}
	a, b, c := solveAffine(lx1, ly1, lx2, ly2, lx3, ly3, m.GPTS[0], m.GPTS[2], m.GPTS[4], det)
	d, e, f := solveAffine(lx1, ly1, lx2, ly2, lx3, ly3, m.GPTS[1], m.GPTS[3], m.GPTS[5], det)
	return a*x + b*y + c, d*x + e*y + f, nil
}

func solveAffine(x1, y1, x2, y2, x3, y3, z1, z2, z3, det float64) (float64, float64, float64) {
	a := (z1*(y2-y3) + z2*(y3-y1) + z3*(y1-y2)) / det
	b := (z1*(x3-x2) + z2*(x1-x3) + z3*(x2-x1)) / det
	c := (z1*(x2*y3-x3*y2) + z2*(x3*y1-x1*y3) + z3*(x1*y2-x2*y1)) / det
	return a, b, c
}

// CoordinateSystem is the /GCS entry of a geospatial measure.
type CoordinateSystem struct {
	Type string // PROJCS or GEOGCS
	WKT  string
	EPSG int
}

// Viewports reads the /VP array of a page. resolve follows indirect
// references.
func Viewports(page *raw.DictObj, resolve func(raw.Object) raw.Object) []Viewport {
	arr, ok := resolve(page.KV["VP"]).(*raw.ArrayObj)
	if !ok {
		return nil
	}
	var out []Viewport
	for _, it := range arr.Items {
		vd, ok := resolve(it).(*raw.DictObj)
		if !ok {
			continue
		}
		var vp Viewport
		if b, ok := numbers(resolve(vd.KV["BBox"]), resolve); ok {
			vp.BBox, _ = coords.BoxFromArray(b)
		}
		if s, ok := resolve(vd.KV["Name"]).(raw.StringObj); ok {
			vp.Name = string(s.Bytes)
		}
		if md, ok := resolve(vd.KV["Measure"]).(*raw.DictObj); ok {
			vp.Measure = measure(md, resolve)
		}
		out = append(out, vp)
	}
	return out
}

func measure(md *raw.DictObj, resolve func(raw.Object) raw.Object) *Measure {
	m := &Measure{}
	m.Subtype, _ = md.Name("Subtype")
	m.Bounds, _ = numbers(resolve(md.KV["Bounds"]), resolve)
	m.GPTS, _ = numbers(resolve(md.KV["GPTS"]), resolve)
	m.LPTS, _ = numbers(resolve(md.KV["LPTS"]), resolve)
	if gd, ok := resolve(md.KV["GCS"]).(*raw.DictObj); ok {
		gcs := &CoordinateSystem{}
		gcs.Type, _ = gd.Name("Type")
		if s, ok := resolve(gd.KV["WKT"]).(raw.StringObj); ok {
			gcs.WKT = string(s.Bytes)
		}
		if n, ok := gd.Int("EPSG"); ok {
			gcs.EPSG = int(n)
		}
		m.GCS = gcs
	}
	return m
}

// HasGeo reports whether page carries geospatial registration.
func HasGeo(page *raw.DictObj, resolve func(raw.Object) raw.Object) bool {
	if _, ok := page.Get("LGIDict"); ok {
		return true
	}
	for _, vp := range Viewports(page, resolve) {
		if vp.Measure.IsGeo() {
			return true
		}
	}
	return false
}

// Strip removes the geospatial entries of page: the /VP array when any
// viewport has a GEO measure, and the legacy /LGIDict. It reports whether
// anything was removed.
func Strip(page *raw.DictObj, resolve func(raw.Object) raw.Object) bool {
	removed := false
	if _, ok := page.Get("LGIDict"); ok {
		page.Delete("LGIDict")
		removed = true
	}
	for _, vp := range Viewports(page, resolve) {
		if vp.Measure.IsGeo() {
			page.Delete("VP")
			return true
		}
	}
	return removed
}

func numbers(o raw.Object, resolve func(raw.Object) raw.Object) ([]float64, bool) {
	arr, ok := o.(*raw.ArrayObj)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(arr.Items))
	for i, it := range arr.Items {
		f, ok := raw.Number(resolve(it))
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
