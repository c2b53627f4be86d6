package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/wudi/privkit/ir/raw"
)

func nums(v ...float64) *raw.ArrayObj {
	arr := raw.NewArray()
	for _, f := range v {
		arr.Append(raw.NumberFloat(f))
	}
	return arr
}

// geoPage returns a page whose single viewport maps the unit square to
// lat = 10 + 2y, lon = 20 + 3x. The measure sits behind a reference.
func geoPage() (*raw.DictObj, func(raw.Object) raw.Object) {
	objects := map[raw.ObjectRef]raw.Object{}
	resolve := func(o raw.Object) raw.Object {
		if r, ok := o.(raw.RefObj); ok {
			if v, ok := objects[r.R]; ok {
				return v
			}
			return raw.NullObj{}
		}
		return o
	}
	gcs := raw.Dict()
	gcs.Set("Type", raw.NameLiteral("GEOGCS"))
	gcs.Set("EPSG", raw.NumberInt(4326))
	m := raw.Dict()
	m.Set("Type", raw.NameLiteral("Measure"))
	m.Set("Subtype", raw.NameLiteral("GEO"))
	m.Set("GPTS", nums(10, 20, 10, 23, 12, 20))
	m.Set("LPTS", nums(0, 0, 1, 0, 0, 1))
	m.Set("GCS", gcs)
	objects[raw.ObjectRef{Num: 7}] = m

	vp := raw.Dict()
	vp.Set("Type", raw.NameLiteral("Viewport"))
	vp.Set("BBox", nums(300, 500, 100, 100))
	vp.Set("Name", raw.Str([]byte("Map")))
	vp.Set("Measure", raw.Ref(7, 0))

	page := raw.Dict()
	page.Set("VP", raw.NewArray(vp))
	return page, resolve
}

func TestViewports(t *testing.T) {
	page, resolve := geoPage()
	vps := Viewports(page, resolve)
	if len(vps) != 1 {
		t.Fatalf("expected 1 viewport, got %d", len(vps))
	}
	vp := vps[0]
	if vp.Name != "Map" || vp.BBox.LLX != 100 || vp.BBox.URY != 500 {
		t.Fatalf("unexpected viewport %+v", vp)
	}
	if !vp.Measure.IsGeo() || vp.Measure.GCS == nil || vp.Measure.GCS.EPSG != 4326 {
		t.Fatalf("measure not read: %+v", vp.Measure)
	}
	if !vp.Contains(200, 300) || vp.Contains(50, 300) {
		t.Fatalf("containment wrong")
	}
	lat, lon, err := vp.Locate(200, 300)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(lat-11) > 1e-9 || math.Abs(lon-21.5) > 1e-9 {
		t.Fatalf("located %v, %v; want 11, 21.5", lat, lon)
	}
}

func TestTransformErrors(t *testing.T) {
	m := &Measure{Subtype: "GEO", GPTS: []float64{1, 2}, LPTS: []float64{0, 0}}
	if _, _, err := m.Transform(0, 0); !errors.Is(err, ErrTooFewPoints) {
		t.Fatalf("expected ErrTooFewPoints, got %v", err)
	}
	m = &Measure{
		Subtype: "GEO",
		GPTS:    []float64{1, 1, 2, 2, 3, 3},
		LPTS:    []float64{0, 0, 1, 1, 2, 2},
	}
	if _, _, err := m.Transform(0, 0); !errors.Is(err, ErrCollinear) {
		t.Fatalf("expected ErrCollinear, got %v", err)
	}
	vp := Viewport{}
	if _, _, err := vp.Locate(0, 0); err == nil {
		t.Fatalf("viewport without measure should not locate")
	}
}

func TestStrip(t *testing.T) {
	page, resolve := geoPage()
	page.Set("LGIDict", raw.Dict())
	if !HasGeo(page, resolve) {
		t.Fatalf("page should report geo data")
	}
	if !Strip(page, resolve) {
		t.Fatalf("strip reported nothing removed")
	}
	if _, ok := page.Get("VP"); ok {
		t.Fatalf("VP survived")
	}
	if _, ok := page.Get("LGIDict"); ok {
		t.Fatalf("LGIDict survived")
	}
	if HasGeo(page, resolve) || Strip(page, resolve) {
		t.Fatalf("second strip should be a no-op")
	}
}

func TestStripKeepsPlainViewports(t *testing.T) {
	vp := raw.Dict()
	vp.Set("BBox", nums(0, 0, 10, 10))
	m := raw.Dict()
	m.Set("Subtype", raw.NameLiteral("RL"))
	vp.Set("Measure", m)
	page := raw.Dict()
	page.Set("VP", raw.NewArray(vp))
	identity := func(o raw.Object) raw.Object { return o }
	if HasGeo(page, identity) || Strip(page, identity) {
		t.Fatalf("rectilinear viewport is not location data")
	}
	if _, ok := page.Get("VP"); !ok {
		t.Fatalf("VP removed")
	}
}
