// Package optimize shrinks PDF files by dropping unreachable objects,
// sharing identical streams, recompressing streams and re-encoding JPEG
// images.
package optimize

import (
	"compress/zlib"
	"context"
	"fmt"
	"time"

	"github.com/wudi/privkit/apperr"
	"github.com/wudi/privkit/document"
	"github.com/wudi/privkit/observability"
	"github.com/wudi/privkit/writer"
)

type Input = document.Input

type Config struct {
	// CompressStreams re-encodes streams with Flate at the best level.
	CompressStreams bool
	// RemoveUnused drops objects unreachable from /Root and /Info.
	RemoveUnused bool
	// DeduplicateStreams makes references to byte-identical streams share
	// the first copy.
	DeduplicateStreams bool
	StripMetadata      bool
	// ImageQuality is the JPEG quality (1-100) for DCTDecode images. Zero
	// leaves images untouched.
	ImageQuality int
	// MaxImageDimension caps the longer side of re-encoded images. Zero
	// keeps the original size.
	MaxImageDimension int

	// MaxFileSize bounds the input of Compress; zero means unlimited.
	MaxFileSize   int64
	Deterministic bool
	Logger        observability.Logger
	Tracker       observability.Tracker
}

// DefaultConfig enables every lossless step and moderate image
// recompression.
func DefaultConfig() Config {
	return Config{
		CompressStreams:    true,
		RemoveUnused:       true,
		DeduplicateStreams: true,
		ImageQuality:       75,
		MaxImageDimension:  2000,
	}
}

func (c Config) validate() error {
	if c.ImageQuality < 0 || c.ImageQuality > 100 {
		return apperr.Validation("invalid image quality", fmt.Sprintf("%d is outside 0..100", c.ImageQuality))
	}
	if c.MaxImageDimension < 0 {
		return apperr.Validation("invalid image dimension", fmt.Sprintf("%d is negative", c.MaxImageDimension))
	}
	return nil
}

// Stats counts what one Optimize pass changed.
type Stats struct {
	ObjectsRemoved     int
	StreamsShared      int
	StreamsRecoded     int
	ImagesRecompressed int
	MetadataRemoved    int
}

type Result struct {
	Data           []byte
	OriginalSize   int64
	CompressedSize int64
	// Unchanged is set when the rewrite was not smaller and Data holds the
	// original bytes.
	Unchanged bool
	Stats     Stats
}

// Savings is the size reduction in percent.
func (r *Result) Savings() float64 {
	if r.OriginalSize == 0 {
		return 0
	}
	return float64(r.OriginalSize-r.CompressedSize) * 100 / float64(r.OriginalSize)
}

type Optimizer struct {
	cfg    Config
	logger observability.Logger
}

func New(cfg Config) *Optimizer {
	return &Optimizer{cfg: cfg, logger: observability.OrNop(cfg.Logger).With(observability.String("op", "compress"))}
}

// Optimize applies cfg to doc in place.
func Optimize(ctx context.Context, doc *document.Document, cfg Config) (Stats, error) {
	return New(cfg).Optimize(ctx, doc)
}

// Compress rewrites in with cfg.
func Compress(ctx context.Context, in Input, cfg Config) (*Result, error) {
	return New(cfg).Compress(ctx, in)
}

func (o *Optimizer) Optimize(ctx context.Context, doc *document.Document) (Stats, error) {
	var st Stats
	if err := o.cfg.validate(); err != nil {
		return st, err
	}
	if o.cfg.StripMetadata {
		st.MetadataRemoved = doc.StripMetadata()
	}
	if o.cfg.RemoveUnused {
		st.ObjectsRemoved += doc.Prune()
	}
	if o.cfg.CompressStreams {
		n, err := recodeStreams(ctx, doc)
		if err != nil {
			return st, err
		}
		st.StreamsRecoded = n
	}
	if o.cfg.ImageQuality > 0 {
		n, err := o.recompressImages(ctx, doc)
		if err != nil {
			return st, err
		}
		st.ImagesRecompressed = n
	}
	if o.cfg.DeduplicateStreams {
		n, err := shareStreams(ctx, doc)
		if err != nil {
			return st, err
		}
		st.StreamsShared = n
	}
	o.logger.Debug("optimized document",
		observability.Int("removed", st.ObjectsRemoved),
		observability.Int("shared", st.StreamsShared),
		observability.Int("recoded", st.StreamsRecoded),
		observability.Int("images", st.ImagesRecompressed))
	return st, nil
}

func (o *Optimizer) Compress(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	res, err := o.compress(ctx, in)
	if err != nil {
		o.logger.Warn("compression failed", observability.String("file", in.Name), observability.Error("error", err))
		observability.SafeTrack(ctx, o.cfg.Tracker, observability.EventToolError, map[string]interface{}{
			"tool": "compress", "kind": string(apperr.KindOf(err)),
		})
		return nil, err
	}
	o.logger.Info("compressed document",
		observability.String("file", in.Name),
		observability.Int64("before", res.OriginalSize),
		observability.Int64("after", res.CompressedSize),
		observability.Bool("unchanged", res.Unchanged))
	observability.SafeTrack(ctx, o.cfg.Tracker, observability.EventPDFCompressed, map[string]interface{}{
		"original_size":   res.OriginalSize,
		"compressed_size": res.CompressedSize,
		"unchanged":       res.Unchanged,
		"duration_ms":     time.Since(start).Milliseconds(),
	})
	return res, nil
}

func (o *Optimizer) compress(ctx context.Context, in Input) (*Result, error) {
	if err := o.cfg.validate(); err != nil {
		return nil, err
	}
	doc, err := document.OpenInput(ctx, in, o.cfg.MaxFileSize, document.Options{Logger: o.logger})
	if err != nil {
		return nil, err
	}
	st, err := o.Optimize(ctx, doc)
	if err != nil {
		return nil, document.ClassifyError(err)
	}
	wc := writer.Config{Compress: o.cfg.CompressStreams, Deterministic: o.cfg.Deterministic}
	if o.cfg.CompressStreams {
		wc.Level = zlib.BestCompression
	}
	data, err := doc.Bytes(ctx, wc)
	if err != nil {
		return nil, document.ClassifyError(err)
	}
	res := &Result{
		Data:           data,
		OriginalSize:   int64(len(in.Data)),
		CompressedSize: int64(len(data)),
		Stats:          st,
	}
	// Stripped metadata must not come back with the original bytes.
	if res.CompressedSize >= res.OriginalSize && st.MetadataRemoved == 0 {
		res.Data = in.Data
		res.CompressedSize = res.OriginalSize
		res.Unchanged = true
	}
	return res, nil
}
