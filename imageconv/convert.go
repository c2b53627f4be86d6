package imageconv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/wudi/privkit/apperr"
	"github.com/wudi/privkit/fileutil"
)

const (
	DefaultQuality = 85
	// DefaultMaxPixels bounds width*height before decoding.
	DefaultMaxPixels = 100_000_000
)

var ErrTooLarge = errors.New("image dimensions exceed the pixel limit")

type Options struct {
	Format Format
	// Quality applies to JPEG output, 1-100. Zero means DefaultQuality.
	Quality int
	// MaxWidth and MaxHeight shrink the image to fit, keeping its aspect
	// ratio. Zero means no bound. Images are never enlarged.
	MaxWidth  int
	MaxHeight int
	// Background fills transparent areas when the output format has no
	// alpha channel. Nil means white.
	Background color.Color
	// MaxPixels bounds width*height of the input. Zero means
	// DefaultMaxPixels.
	MaxPixels int
}

func (o Options) withDefaults() Options {
	if o.Quality == 0 {
		o.Quality = DefaultQuality
	}
	if o.Background == nil {
		o.Background = color.White
	}
	if o.MaxPixels == 0 {
		o.MaxPixels = DefaultMaxPixels
	}
	return o
}

func (o Options) validate() error {
	switch {
	case !o.Format.CanEncode():
		return &apperr.Error{Kind: apperr.KindUnsupported, Message: "cannot write this image format", Details: o.Format.String()}
	case o.Quality < 1 || o.Quality > 100:
		return apperr.Validation("invalid quality", fmt.Sprintf("%d is outside 1..100", o.Quality))
	case o.MaxWidth < 0 || o.MaxHeight < 0:
		return apperr.Validation("invalid size bound", fmt.Sprintf("%dx%d", o.MaxWidth, o.MaxHeight))
	}
	return nil
}

// Decode reads any supported format after checking the declared
// dimensions against maxPixels.
func Decode(data []byte, maxPixels int) (image.Image, Format, error) {
	f := Detect(data)
	if f == Unknown {
		return nil, Unknown, &apperr.Error{Kind: apperr.KindUnsupported, Message: "unsupported image format", Details: "unrecognized file signature"}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, f, apperr.Wrap(apperr.KindCorrupted, "the image could not be read", err)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, f, &apperr.Error{Kind: apperr.KindValidation, Message: "the image is too large",
			Details: fmt.Sprintf("%dx%d pixels", cfg.Width, cfg.Height), Cause: ErrTooLarge}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, f, apperr.Wrap(apperr.KindCorrupted, "the image could not be read", err)
	}
	return img, f, nil
}

// Convert decodes data and encodes it as opts.Format.
func Convert(data []byte, opts Options) ([]byte, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	img, _, err := Decode(data, opts.MaxPixels)
	if err != nil {
		return nil, err
	}
	img = fit(img, opts.MaxWidth, opts.MaxHeight)
	var buf bytes.Buffer
	if err := encode(&buf, img, opts); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "the image could not be encoded", err)
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, img image.Image, opts Options) error {
	switch opts.Format {
	case JPEG:
		return jpeg.Encode(buf, flatten(img, opts.Background), &jpeg.Options{Quality: opts.Quality})
	case PNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		return enc.Encode(buf, img)
	case GIF:
		return gif.Encode(buf, img, &gif.Options{NumColors: 256, Drawer: draw.FloydSteinberg})
	case BMP:
		return bmp.Encode(buf, img)
	case TIFF:
		return tiff.Encode(buf, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	}
	return fmt.Errorf("no encoder for %s", opts.Format)
}

// fit scales img down with Catmull-Rom so it fits in maxW x maxH.
func fit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && h > maxH {
		if s := float64(maxH) / float64(h); s < scale {
			scale = s
		}
	}
	if scale >= 1 {
		return img
	}
	nw, nh := int(float64(w)*scale+0.5), int(float64(h)*scale+0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// flatten composites img over bg. Opaque images are returned as they are.
func flatten(img image.Image, bg color.Color) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// Input is a named image held in memory.
type Input struct {
	Name string
	Data []byte
}

// Output is the converted form of the Input with the same index.
type Output struct {
	Name string
	Data []byte
}

// ConvertAll converts every input using at most workers goroutines and
// names each output after its input with the new extension. The first
// failure cancels the remaining work.
func ConvertAll(ctx context.Context, inputs []Input, opts Options, workers int) ([]Output, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]Output, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return apperr.Classify(err)
			}
			data, err := Convert(in.Data, opts)
			if err != nil {
				ae := apperr.Classify(err)
				return &apperr.Error{Kind: ae.Kind, Message: ae.Message, Details: in.Name, Cause: err}
			}
			out[i] = Output{Name: fileutil.OutputName(in.Name, "", opts.Format.Extension()), Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
