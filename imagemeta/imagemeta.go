// Package imagemeta removes privacy-sensitive metadata from JPEG and PNG
// files by walking their segment and chunk structure. Pixel data is never
// decoded.
package imagemeta

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

var ErrUnsupportedFormat = errors.New("unsupported image format: only JPEG and PNG metadata can be stripped")

type Format int

const (
	Unknown Format = iota
	JPEG
	PNG
)

func (f Format) String() string {
	switch f {
	case JPEG:
		return "jpeg"
	case PNG:
		return "png"
	}
	return "unknown"
}

// Detect sniffs the format from magic bytes.
func Detect(data []byte) Format {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == markerSOI && data[2] == 0xFF:
		return JPEG
	case bytes.HasPrefix(data, pngSignature):
		return PNG
	}
	return Unknown
}

// Strip dispatches on the detected format.
func Strip(data []byte, opts ...JPEGOption) ([]byte, Format, error) {
	switch f := Detect(data); f {
	case JPEG:
		out, err := StripJPEG(data, opts...)
		return out, f, err
	case PNG:
		out, err := StripPNG(data)
		return out, f, err
	default:
		return nil, Unknown, ErrUnsupportedFormat
	}
}

// Report summarizes what Strip keeps and removes.
type Report struct {
	Format  Format
	Kept    []string
	Removed []string
}

// Inspect reports the segment or chunk names Strip would keep and remove.
func Inspect(data []byte, opts ...JPEGOption) (Report, error) {
	r := Report{Format: Detect(data)}
	switch r.Format {
	case JPEG:
		var cfg jpegConfig
		for _, o := range opts {
			o(&cfg)
		}
		segs, err := JPEGSegments(data)
		if err != nil {
			return r, err
		}
		for _, s := range segs {
			if cfg.drops(s.Marker) {
				r.Removed = append(r.Removed, s.Name())
			} else {
				r.Kept = append(r.Kept, s.Name())
			}
		}
	case PNG:
		chunks, err := PNGChunks(data)
		if err != nil {
			return r, err
		}
		for _, c := range chunks {
			if c.Class.Kept() {
				r.Kept = append(r.Kept, c.Type)
			} else {
				r.Removed = append(r.Removed, c.Type)
			}
		}
	default:
		return r, ErrUnsupportedFormat
	}
	return r, nil
}

// StripAll strips every input using at most workers goroutines. The first
// failure cancels the remaining work.
func StripAll(ctx context.Context, inputs [][]byte, workers int, opts ...JPEGOption) ([][]byte, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([][]byte, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, data := range inputs {
		i, data := i, data
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			stripped, _, err := Strip(data, opts...)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			out[i] = stripped
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
