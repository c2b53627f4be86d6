package filters

import (
	"errors"
	"fmt"

	"github.com/wudi/privkit/ir/raw"
)

// ExtractFilters reads Filter and DecodeParms entries from a stream dictionary.
func ExtractFilters(dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	var params []*raw.DictObj

	filterObj, ok := dict.Get("Filter")
	if !ok {
		return names, params
	}
	switch f := filterObj.(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := item.(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}
	if len(names) == 0 {
		return names, params
	}
	pObj, ok := dict.Get("DecodeParms")
	if !ok {
		pObj, ok = dict.Get("DP")
	}
	if ok {
		switch p := pObj.(type) {
		case *raw.DictObj:
			params = append(params, p)
		case *raw.ArrayObj:
			for _, item := range p.Items {
				d, _ := item.(*raw.DictObj)
				params = append(params, d)
			}
		}
	}
	return names, params
}

// HasFilter reports whether the stream dictionary names filter.
func HasFilter(dict *raw.DictObj, filter string) bool {
	names, _ := ExtractFilters(dict)
	for _, n := range names {
		if n == filter {
			return true
		}
	}
	return false
}

// applyPredictor reverses PNG (10..15) row predictors. TIFF predictor 2 is
// rejected.
func applyPredictor(data []byte, params *raw.DictObj) ([]byte, error) {
	predictor, _ := params.Int("Predictor")
	if predictor <= 1 {
		return data, nil
	}
	if predictor == 2 {
		return nil, errors.New("TIFF predictor not supported")
	}
	if predictor < 10 || predictor > 15 {
		return nil, fmt.Errorf("unknown predictor %d", predictor)
	}
	colors := intParam(params, "Colors", 1)
	bpc := intParam(params, "BitsPerComponent", 8)
	columns := intParam(params, "Columns", 1)
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8
	if rowLen <= 0 || bpp <= 0 {
		return nil, errors.New("invalid predictor parameters")
	}

	out := make([]byte, 0, len(data)/(rowLen+1)*rowLen)
	prev := make([]byte, rowLen)
	for off := 0; off+1 <= len(data); off += rowLen + 1 {
		end := off + 1 + rowLen
		if end > len(data) {
			break
		}
		filter := data[off]
		row := append([]byte(nil), data[off+1:end]...)
		for i := range row {
			var left, up, upLeft byte
			if i >= bpp {
				left = row[i-bpp]
				upLeft = prev[i-bpp]
			}
			up = prev[i]
			switch filter {
			case 0:
			case 1:
				row[i] += left
			case 2:
				row[i] += up
			case 3:
				row[i] += byte((int(left) + int(up)) / 2)
			case 4:
				row[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("invalid PNG row filter %d", filter)
			}
		}
		out = append(out, row...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func intParam(d *raw.DictObj, key string, def int) int {
	if v, ok := d.Int(key); ok && v > 0 {
		return int(v)
	}
	return def
}
