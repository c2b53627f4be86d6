package document

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/wudi/privkit/coords"
	"github.com/wudi/privkit/ir/raw"
)

// letter is used when neither the page nor its ancestors carry a MediaBox.
var letter = coords.Box{URX: 612, URY: 792}

// Page is a page dictionary with its inheritable attributes resolved.
type Page struct {
	Index     int
	Ref       raw.ObjectRef
	Dict      *raw.DictObj
	MediaBox  coords.Box
	CropBox   coords.Box
	HasCrop   bool
	Rotate    int
	Resources *raw.DictObj
}

// VisibleBox is the CropBox when present, clipped to the MediaBox, and the
// MediaBox otherwise.
func (p *Page) VisibleBox() coords.Box {
	if !p.HasCrop {
		return p.MediaBox
	}
	b := p.CropBox
	m := p.MediaBox
	if b.LLX < m.LLX {
		b.LLX = m.LLX
	}
	if b.LLY < m.LLY {
		b.LLY = m.LLY
	}
	if b.URX > m.URX {
		b.URX = m.URX
	}
	if b.URY > m.URY {
		b.URY = m.URY
	}
	if b.Width() <= 0 || b.Height() <= 0 {
		return m
	}
	return b
}

type inherited struct {
	mediaBox  raw.Object
	cropBox   raw.Object
	rotate    raw.Object
	resources raw.Object
}

func (d *Document) pageDict(index int) (*raw.DictObj, error) {
	if index < 0 || index >= len(d.pages) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, index+1, len(d.pages))
	}
	dict, ok := d.resolveDict(raw.RefObj{R: d.pages[index]})
	if !ok {
		return nil, fmt.Errorf("page %d is not a dictionary", index+1)
	}
	return dict, nil
}

// Page returns the zero-based page index with MediaBox, CropBox, Rotate and
// Resources taken from the nearest ancestor that defines them.
func (d *Document) Page(index int) (*Page, error) {
	dict, err := d.pageDict(index)
	if err != nil {
		return nil, err
	}
	attrs := d.inheritedAttrs(dict)
	p := &Page{Index: index, Ref: d.pages[index], Dict: dict, MediaBox: letter}
	if b, ok := d.box(attrs.mediaBox); ok {
		p.MediaBox = b
	}
	p.CropBox = p.MediaBox
	if b, ok := d.box(attrs.cropBox); ok {
		p.CropBox, p.HasCrop = b, true
	}
	if n, ok := d.Resolve(attrs.rotate).(raw.NumberObj); ok {
		p.Rotate = normalizeRotation(int(n.Int()))
	}
	if res, ok := d.resolveDict(attrs.resources); ok {
		p.Resources = res
	}
	return p, nil
}

// inheritedAttrs walks /Parent links collecting the first value seen for
// each inheritable key.
func (d *Document) inheritedAttrs(dict *raw.DictObj) inherited {
	var attrs inherited
	seen := make(map[*raw.DictObj]bool)
	for node, depth := dict, 0; node != nil && !seen[node] && depth <= maxTreeDepth; depth++ {
		seen[node] = true
		pick := func(dst *raw.Object, key string) {
			if *dst == nil {
				if v, ok := node.Get(key); ok {
					*dst = v
				}
			}
		}
		pick(&attrs.mediaBox, "MediaBox")
		pick(&attrs.cropBox, "CropBox")
		pick(&attrs.rotate, "Rotate")
		pick(&attrs.resources, "Resources")
		parent, ok := d.resolveDict(node.KV["Parent"])
		if !ok {
			break
		}
		node = parent
	}
	return attrs
}

func (d *Document) box(o raw.Object) (coords.Box, bool) {
	arr, ok := d.Resolve(o).(*raw.ArrayObj)
	if !ok || arr.Len() != 4 {
		return coords.Box{}, false
	}
	v := make([]float64, 4)
	for i, it := range arr.Items {
		f, ok := raw.Number(d.Resolve(it))
		if !ok {
			return coords.Box{}, false
		}
		v[i] = f
	}
	b, ok := coords.BoxFromArray(v)
	if !ok || b.Width() <= 0 || b.Height() <= 0 {
		return coords.Box{}, false
	}
	return b, true
}

// BoxArray renders b as a PDF rectangle.
func BoxArray(b coords.Box) *raw.ArrayObj {
	arr := raw.NewArray()
	for _, v := range b.Array() {
		arr.Append(number(v))
	}
	return arr
}

func number(v float64) raw.NumberObj {
	if v == float64(int64(v)) {
		return raw.NumberInt(int64(v))
	}
	return raw.NumberFloat(v)
}

func normalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	return r - r%90
}

var utf16BOM = []byte{0xFE, 0xFF}

// decodeText decodes a PDF text string: UTF-16BE when it starts with a
// byte order mark, Latin-1 compatible PDFDocEncoding otherwise.
func decodeText(b []byte) string {
	if len(b) >= 2 && b[0] == utf16BOM[0] && b[1] == utf16BOM[1] {
		out, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(b)
		if err == nil {
			return string(out)
		}
	}
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// encodeText keeps ASCII as-is and writes anything else as UTF-16BE.
func encodeText(s string) []byte {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return []byte(s)
	}
	out, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}
