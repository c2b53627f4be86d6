package contentstream

import (
	"math"

	"github.com/wudi/privkit/coords"
	"github.com/wudi/privkit/ir/raw"
)

// Kind classifies what a traced operation paints.
type Kind int

const (
	KindText Kind = iota + 1
	KindImage
	KindForm
	KindPath
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindForm:
		return "form"
	case KindPath:
		return "path"
	}
	return "unknown"
}

// OpBBox is the user space bounding box of the operation at Index.
type OpBBox struct {
	Index    int
	Operator string
	Kind     Kind
	Box      coords.Box
}

// defaultWidth is the glyph width in thousandths of an em used when a font
// carries no width for a code.
const defaultWidth = 500

// Trace replays ops and returns the boxes of the operations that paint
// text, images, forms and paths. Text extents are approximate: glyph
// widths come from the font's /Widths, the height spans the font size.
func Trace(ops []Operation, res Resources) []OpBBox {
	var out []OpBBox
	gs := NewGraphicsState()
	ts := newTextState()
	var path pathBounds

	for i, op := range ops {
		add := func(kind Kind, box coords.Box) {
			out = append(out, OpBBox{Index: i, Operator: op.Operator, Kind: kind, Box: box})
		}
		n := op.Operands
		switch op.Operator {
		case "q":
			gs.Save()
		case "Q":
			gs.Restore()
		case "cm":
			if m, ok := matrix(n); ok {
				gs.CTM = m.Multiply(gs.CTM)
			}

		case "BT":
			ts.TextMatrix, ts.TextLineMatrix = coords.Identity(), coords.Identity()
		case "Tf":
			if len(n) == 2 {
				if name, ok := n[0].(raw.NameObj); ok {
					ts.Font = name.Val
				}
				ts.FontSize = number(n[1])
			}
		case "Tc":
			ts.CharSpacing = first(n)
		case "Tw":
			ts.WordSpacing = first(n)
		case "Tz":
			ts.HScale = first(n) / 100
		case "TL":
			ts.Leading = first(n)
		case "Ts":
			ts.Rise = first(n)
		case "Tm":
			if m, ok := matrix(n); ok {
				ts.TextLineMatrix, ts.TextMatrix = m, m
			}
		case "Td":
			if len(n) == 2 {
				ts.newLine(number(n[0]), number(n[1]))
			}
		case "TD":
			if len(n) == 2 {
				ts.Leading = -number(n[1])
				ts.newLine(number(n[0]), number(n[1]))
			}
		case "T*":
			ts.newLine(0, -ts.Leading)

		case "Tj":
			if len(n) == 1 {
				add(KindText, showText(n, ts, gs, res))
			}
		case "TJ":
			if len(n) == 1 {
				if arr, ok := n[0].(*raw.ArrayObj); ok {
					add(KindText, showText(arr.Items, ts, gs, res))
				}
			}
		case "'":
			ts.newLine(0, -ts.Leading)
			if len(n) == 1 {
				add(KindText, showText(n, ts, gs, res))
			}
		case "\"":
			if len(n) == 3 {
				ts.WordSpacing, ts.CharSpacing = number(n[0]), number(n[1])
				ts.newLine(0, -ts.Leading)
				add(KindText, showText(n[2:], ts, gs, res))
			}

		case "m", "l":
			if len(n) == 2 {
				path.add(gs.CTM, number(n[0]), number(n[1]))
			}
		case "c":
			if len(n) == 6 {
				for j := 0; j < 6; j += 2 {
					path.add(gs.CTM, number(n[j]), number(n[j+1]))
				}
			}
		case "v", "y":
			if len(n) == 4 {
				path.add(gs.CTM, number(n[0]), number(n[1]))
				path.add(gs.CTM, number(n[2]), number(n[3]))
			}
		case "re":
			if len(n) == 4 {
				x, y, w, h := number(n[0]), number(n[1]), number(n[2]), number(n[3])
				path.add(gs.CTM, x, y)
				path.add(gs.CTM, x+w, y+h)
				path.add(gs.CTM, x+w, y)
				path.add(gs.CTM, x, y+h)
			}
		case "S", "s", "f", "F", "f*", "B", "B*", "b", "b*":
			if path.ok {
				add(KindPath, path.box)
			}
			path = pathBounds{}
		case "n":
			path = pathBounds{}

		case "Do":
			if len(n) != 1 {
				break
			}
			name, ok := n[0].(raw.NameObj)
			if !ok {
				break
			}
			xo, ok := res.XObjects[name.Val]
			if !ok {
				break
			}
			if xo.Subtype == "Form" {
				add(KindForm, transformBox(xo.BBox, xo.Matrix.Multiply(gs.CTM)))
			} else {
				add(KindImage, transformBox(coords.Box{URX: 1, URY: 1}, gs.CTM))
			}
		case "BI":
			add(KindImage, transformBox(coords.Box{URX: 1, URY: 1}, gs.CTM))
		}
	}
	return out
}

// showText returns the box of the shown strings and advances the text
// matrix past them.
func showText(items []raw.Object, ts *TextState, gs *GraphicsState, res Resources) coords.Box {
	font := res.Fonts[ts.Font]
	var width float64
	for _, it := range items {
		switch v := it.(type) {
		case raw.StringObj:
			step := 1
			if font.TwoByte {
				step = 2
			}
			for j := 0; j+step <= len(v.Bytes); j += step {
				code := int(v.Bytes[j])
				if step == 2 {
					code = code<<8 | int(v.Bytes[j+1])
				}
				w := font.width(code)/1000*ts.FontSize + ts.CharSpacing
				if step == 1 && code == ' ' {
					w += ts.WordSpacing
				}
				width += w * ts.HScale
			}
		case raw.NumberObj:
			width -= v.Float() / 1000 * ts.FontSize * ts.HScale
		}
	}
	m := ts.TextMatrix.Multiply(gs.CTM)
	box := transformBox(coords.Box{URX: width, LLY: ts.Rise, URY: ts.Rise + ts.FontSize}, m)
	ts.TextMatrix = coords.Translate(width, 0).Multiply(ts.TextMatrix)
	return box
}

type pathBounds struct {
	box coords.Box
	ok  bool
}

func (p *pathBounds) add(m coords.Matrix, x, y float64) {
	pt := m.Transform(coords.Point{X: x, Y: y})
	if !p.ok {
		p.box = coords.Box{LLX: pt.X, LLY: pt.Y, URX: pt.X, URY: pt.Y}
		p.ok = true
		return
	}
	p.box.LLX = math.Min(p.box.LLX, pt.X)
	p.box.LLY = math.Min(p.box.LLY, pt.Y)
	p.box.URX = math.Max(p.box.URX, pt.X)
	p.box.URY = math.Max(p.box.URY, pt.Y)
}

func transformBox(b coords.Box, m coords.Matrix) coords.Box {
	r := b.Rect().Transform(m)
	return coords.Box{LLX: r.X, LLY: r.Y, URX: r.X + r.W, URY: r.Y + r.H}
}

func matrix(n []raw.Object) (coords.Matrix, bool) {
	if len(n) != 6 {
		return coords.Matrix{}, false
	}
	var m coords.Matrix
	for i := range m {
		m[i] = number(n[i])
	}
	return m, true
}

func number(o raw.Object) float64 {
	f, _ := raw.Number(o)
	return f
}

func first(n []raw.Object) float64 {
	if len(n) == 0 {
		return 0
	}
	return number(n[0])
}
