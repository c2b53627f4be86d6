package imageconv

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/wudi/privkit/apperr"
	"github.com/wudi/privkit/coords"
	"github.com/wudi/privkit/document"
	"github.com/wudi/privkit/ir/raw"
	"github.com/wudi/privkit/writer"
)

type PageSize int

const (
	// FitImage sizes each page to its image at 72 dpi plus the margin.
	FitImage PageSize = iota
	A4
	Letter
)

func (s PageSize) dims() (w, h float64) {
	switch s {
	case A4:
		return 595.28, 841.89
	case Letter:
		return 612, 792
	}
	return 0, 0
}

// ParsePageSize accepts "fit", "a4" and "letter".
func ParsePageSize(s string) (PageSize, error) {
	switch s {
	case "", "fit":
		return FitImage, nil
	case "a4", "A4":
		return A4, nil
	case "letter", "Letter":
		return Letter, nil
	}
	return FitImage, apperr.Validation("unknown page size", s)
}

type PageOptions struct {
	Size PageSize
	// Margin in points on every side.
	Margin        float64
	MaxPixels     int
	Deterministic bool
}

// ToPDF places each image on its own page, in order. Fixed page sizes
// turn to landscape for wide images and scale the image to fit inside the
// margins, centered.
func ToPDF(ctx context.Context, images [][]byte, opts PageOptions) ([]byte, error) {
	if len(images) == 0 {
		return nil, apperr.Validation("no images given")
	}
	if opts.Margin < 0 {
		return nil, apperr.Validation("invalid margin", fmt.Sprintf("%g is negative", opts.Margin))
	}
	if opts.MaxPixels == 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	doc := document.New()
	for i, data := range images {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Classify(err)
		}
		xobj, w, h, err := imageXObject(doc, data, opts.MaxPixels)
		if err != nil {
			ae := apperr.Classify(err)
			return nil, &apperr.Error{Kind: ae.Kind, Message: ae.Message, Details: fmt.Sprintf("image %d", i+1), Cause: err}
		}
		if err := addImagePage(doc, xobj, float64(w), float64(h), opts); err != nil {
			return nil, err
		}
	}
	data, err := doc.Bytes(ctx, writer.Config{Compress: true, Deterministic: opts.Deterministic})
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return data, nil
}

func addImagePage(doc *document.Document, xobj raw.RefObj, w, h float64, opts PageOptions) error {
	m := opts.Margin
	pw, ph := opts.Size.dims()
	var placed coords.Rect
	if opts.Size == FitImage {
		pw, ph = w+2*m, h+2*m
		placed = coords.Rect{X: m, Y: m, W: w, H: h}
	} else {
		if w > h {
			pw, ph = ph, pw
		}
		aw, ah := pw-2*m, ph-2*m
		if aw <= 0 || ah <= 0 {
			return apperr.Validation("invalid margin", "the margin leaves no room on the page")
		}
		scale := aw / w
		if s := ah / h; s < scale {
			scale = s
		}
		dw, dh := w*scale, h*scale
		placed = coords.Rect{X: (pw - dw) / 2, Y: (ph - dh) / 2, W: dw, H: dh}
	}
	content := fmt.Sprintf("q %s 0 0 %s %s %s cm /Im0 Do Q\n",
		writer.FormatReal(placed.W), writer.FormatReal(placed.H), writer.FormatReal(placed.X), writer.FormatReal(placed.Y))

	xobjects := raw.Dict()
	xobjects.Set("Im0", xobj)
	res := raw.Dict()
	res.Set("XObject", xobjects)
	page := raw.Dict()
	page.Set("MediaBox", document.BoxArray(coords.Box{URX: pw, URY: ph}))
	page.Set("Resources", res)
	page.Set("Contents", doc.Add(raw.NewStream(nil, []byte(content))))
	_, err := doc.AddPage(page)
	return err
}

// imageXObject adds data as an image XObject. Baseline RGB and gray JPEGs
// are embedded unchanged with DCTDecode; everything else is decoded and
// stored as 8-bit RGB with an SMask when any pixel is translucent.
func imageXObject(doc *document.Document, data []byte, maxPixels int) (raw.RefObj, int, int, error) {
	if Detect(data) == JPEG {
		if cfg, err := jpeg.DecodeConfig(bytes.NewReader(data)); err == nil && maxPixels > 0 &&
			int64(cfg.Width)*int64(cfg.Height) <= int64(maxPixels) {
			if cs, ok := jpegColorSpace(cfg.ColorModel); ok {
				d := imageDict(cfg.Width, cfg.Height, cs)
				d.Set("Filter", raw.NameLiteral("DCTDecode"))
				return doc.Add(raw.NewStream(d, data)), cfg.Width, cfg.Height, nil
			}
		}
	}
	img, _, err := Decode(data, maxPixels)
	if err != nil {
		return raw.RefObj{}, 0, 0, err
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)

	rgb := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	translucent := false
	for i := 0; i < len(nrgba.Pix); i += 4 {
		rgb = append(rgb, nrgba.Pix[i], nrgba.Pix[i+1], nrgba.Pix[i+2])
		alpha = append(alpha, nrgba.Pix[i+3])
		if nrgba.Pix[i+3] != 0xFF {
			translucent = true
		}
	}
	d := imageDict(w, h, "DeviceRGB")
	if translucent {
		d.Set("SMask", doc.Add(raw.NewStream(imageDict(w, h, "DeviceGray"), alpha)))
	}
	return doc.Add(raw.NewStream(d, rgb)), w, h, nil
}

func imageDict(w, h int, cs string) *raw.DictObj {
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("XObject"))
	d.Set("Subtype", raw.NameLiteral("Image"))
	d.Set("Width", raw.NumberInt(int64(w)))
	d.Set("Height", raw.NumberInt(int64(h)))
	d.Set("ColorSpace", raw.NameLiteral(cs))
	d.Set("BitsPerComponent", raw.NumberInt(8))
	return d
}

// jpegColorSpace maps the decoded color model of a JPEG to a PDF color
// space. CMYK JPEGs are re-encoded instead, since Adobe files store
// inverted components.
func jpegColorSpace(m color.Model) (string, bool) {
	switch m {
	case color.GrayModel:
		return "DeviceGray", true
	case color.YCbCrModel:
		return "DeviceRGB", true
	}
	return "", false
}
