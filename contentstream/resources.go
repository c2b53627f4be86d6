package contentstream

import (
	"github.com/wudi/privkit/coords"
	"github.com/wudi/privkit/ir/raw"
)

// FontMetrics holds the horizontal metrics needed to size shown text.
type FontMetrics struct {
	FirstChar    int
	Widths       []float64
	MissingWidth float64
	// TwoByte marks composite fonts, whose codes are read two bytes at a
	// time.
	TwoByte bool
}

func (f FontMetrics) width(code int) float64 {
	if i := code - f.FirstChar; i >= 0 && i < len(f.Widths) {
		return f.Widths[i]
	}
	if f.MissingWidth > 0 {
		return f.MissingWidth
	}
	return defaultWidth
}

// XObject is the placement information of a named XObject.
type XObject struct {
	Subtype string
	BBox    coords.Box
	Matrix  coords.Matrix
}

// Resources is what Trace needs from a page resource dictionary.
type Resources struct {
	Fonts    map[string]FontMetrics
	XObjects map[string]XObject
}

// ResourcesFrom reads fonts and XObjects from a resource dictionary.
// resolve follows indirect references.
func ResourcesFrom(dict *raw.DictObj, resolve func(raw.Object) raw.Object) Resources {
	res := Resources{Fonts: map[string]FontMetrics{}, XObjects: map[string]XObject{}}
	if dict == nil {
		return res
	}
	asDict := func(o raw.Object) *raw.DictObj {
		switch v := resolve(o).(type) {
		case *raw.DictObj:
			return v
		case *raw.StreamObj:
			return v.Dict
		}
		return nil
	}
	if fonts := asDict(dict.KV["Font"]); fonts != nil {
		for name, ref := range fonts.KV {
			if fd := asDict(ref); fd != nil {
				res.Fonts[name] = fontMetrics(fd, asDict, resolve)
			}
		}
	}
	if xobjs := asDict(dict.KV["XObject"]); xobjs != nil {
		for name, ref := range xobjs.KV {
			xd := asDict(ref)
			if xd == nil {
				continue
			}
			xo := XObject{Matrix: coords.Identity()}
			xo.Subtype, _ = xd.Name("Subtype")
			if b, ok := floats(resolve(xd.KV["BBox"]), resolve); ok {
				xo.BBox, _ = coords.BoxFromArray(b)
			}
			if m, ok := floats(resolve(xd.KV["Matrix"]), resolve); ok && len(m) == 6 {
				copy(xo.Matrix[:], m)
			}
			res.XObjects[name] = xo
		}
	}
	return res
}

func fontMetrics(fd *raw.DictObj, asDict func(raw.Object) *raw.DictObj, resolve func(raw.Object) raw.Object) FontMetrics {
	var fm FontMetrics
	if sub, _ := fd.Name("Subtype"); sub == "Type0" {
		fm.TwoByte = true
		fm.MissingWidth = 1000
		return fm
	}
	if fc, ok := fd.Int("FirstChar"); ok {
		fm.FirstChar = int(fc)
	}
	fm.Widths, _ = floats(resolve(fd.KV["Widths"]), resolve)
	if desc := asDict(fd.KV["FontDescriptor"]); desc != nil {
		if mw, ok := raw.Number(resolve(desc.KV["MissingWidth"])); ok {
			fm.MissingWidth = mw
		}
	}
	return fm
}

func floats(o raw.Object, resolve func(raw.Object) raw.Object) ([]float64, bool) {
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
