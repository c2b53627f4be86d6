package optimize

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"

	"github.com/wudi/privkit/document"
	"github.com/wudi/privkit/filters"
	"github.com/wudi/privkit/ir/raw"
	"github.com/wudi/privkit/observability"
)

// recompressImages re-encodes DCTDecode image XObjects at the configured
// quality, downscaling those whose longer side exceeds MaxImageDimension.
// A new encoding replaces the old one only when it is smaller.
func (o *Optimizer) recompressImages(ctx context.Context, doc *document.Document) (int, error) {
	n := 0
	for ref, obj := range doc.Raw().Objects {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		stm, ok := obj.(*raw.StreamObj)
		if !ok || !isJPEGImage(stm) {
			continue
		}
		data, w, h, gray, ok := o.reencode(stm.Data)
		if !ok {
			continue
		}
		stm.Data = data
		stm.Dict.Set("Width", raw.NumberInt(int64(w)))
		stm.Dict.Set("Height", raw.NumberInt(int64(h)))
		stm.Dict.Set("BitsPerComponent", raw.NumberInt(8))
		cs := "DeviceRGB"
		if gray {
			cs = "DeviceGray"
		}
		stm.Dict.Set("ColorSpace", raw.NameLiteral(cs))
		stm.Dict.Delete("DecodeParms")
		o.logger.Debug("recompressed image", observability.String("object", ref.String()))
		n++
	}
	return n, nil
}

func isJPEGImage(stm *raw.StreamObj) bool {
	if stm.Dict == nil {
		return false
	}
	if sub, _ := stm.Dict.Name("Subtype"); sub != "Image" {
		return false
	}
	// A /Decode array or a mask would need remapping after re-encoding.
	if _, ok := stm.Dict.Get("Decode"); ok {
		return false
	}
	if m, ok := stm.Dict.Get("ImageMask"); ok && m == raw.Object(raw.Bool(true)) {
		return false
	}
	names, _ := filters.ExtractFilters(stm.Dict)
	return len(names) == 1 && names[0] == "DCTDecode"
}

// reencode returns the new JPEG bytes and dimensions, or ok=false when the
// image is CMYK, undecodable or would not shrink.
func (o *Optimizer) reencode(src []byte) (out []byte, w, h int, gray, ok bool) {
	img, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, 0, 0, false, false
	}
	switch img.(type) {
	case *image.YCbCr:
	case *image.Gray:
		gray = true
	default:
		return nil, 0, 0, false, false
	}
	img = o.downscale(img, gray)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: o.cfg.ImageQuality}); err != nil {
		return nil, 0, 0, false, false
	}
	if buf.Len() >= len(src) {
		return nil, 0, 0, false, false
	}
	b := img.Bounds()
	return buf.Bytes(), b.Dx(), b.Dy(), gray, true
}

func (o *Optimizer) downscale(img image.Image, gray bool) image.Image {
	limit := o.cfg.MaxImageDimension
	b := img.Bounds()
	longer := b.Dx()
	if b.Dy() > longer {
		longer = b.Dy()
	}
	if limit <= 0 || longer <= limit {
		return img
	}
	scale := float64(limit) / float64(longer)
	rect := image.Rect(0, 0, scaled(b.Dx(), scale), scaled(b.Dy(), scale))
	var dst draw.Image
	if gray {
		dst = image.NewGray(rect)
	} else {
		dst = image.NewRGBA(rect)
	}
	draw.CatmullRom.Scale(dst, rect, img, b, draw.Src, nil)
	return dst
}

func scaled(n int, scale float64) int {
	v := int(math.Round(float64(n) * scale))
	if v < 1 {
		return 1
	}
	return v
}
