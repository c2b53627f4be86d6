// Package redact draws opaque boxes over regions of PDF pages.
//
// Redaction is vector based: the boxes cover the content visually, but
// text and images underneath stay in the page content stream. Flattening
// moves each original page into a form XObject so the boxes cannot be
// removed by editing page structure; it does not remove the covered
// content either.
package redact

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/wudi/privkit/apperr"
	"github.com/wudi/privkit/contentstream"
	"github.com/wudi/privkit/coords"
	"github.com/wudi/privkit/document"
	"github.com/wudi/privkit/ir/raw"
	"github.com/wudi/privkit/observability"
	"github.com/wudi/privkit/writer"
)

// Input is a named PDF held in memory.
type Input = document.Input

type Options struct {
	// Flatten places every original page inside a form XObject on a new
	// page and draws the boxes above it.
	Flatten bool
	// Color is the fill in DeviceRGB components 0..1. The zero value is black.
	Color         [3]float64
	StripMetadata bool
	// MaxFileSize bounds the input; zero means unlimited.
	MaxFileSize   int64
	Deterministic bool
	Logger        observability.Logger
	Tracker       observability.Tracker
	Tracer        observability.Tracer
}

type Result struct {
	Data []byte
	// RedactedCount is the number of areas drawn.
	RedactedCount int
	PagesAffected int
	PageCount     int
	Flattened     bool
	// CoveredText and CoveredImages count text and image drawing
	// operations under the boxes. The boxes hide them on screen; they stay
	// in the file.
	CoveredText   int
	CoveredImages int
}

// Redact validates in and areas, then draws the boxes in place or on a
// flattened copy.
func Redact(ctx context.Context, in Input, areas []Area, opts Options) (*Result, error) {
	logger := observability.OrNop(opts.Logger).With(observability.String("op", "redact"))
	tracer := opts.Tracer
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	ctx, span := tracer.StartSpan(ctx, "redact")
	defer span.Finish()
	start := time.Now()

	res, err := redact(ctx, in, areas, opts, logger)
	if err != nil {
		span.SetError(err)
		observability.SafeTrack(ctx, opts.Tracker, observability.EventToolError, map[string]interface{}{
			"tool": "redact", "kind": string(apperr.KindOf(err)),
		})
		return nil, err
	}
	span.SetTag("areas", res.RedactedCount)
	logger.Info("redaction complete",
		observability.Int("areas", res.RedactedCount),
		observability.Int("pages", res.PagesAffected),
		observability.Bool("flattened", res.Flattened),
		observability.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	observability.SafeTrack(ctx, opts.Tracker, observability.EventPDFRedacted, map[string]interface{}{
		"areas": res.RedactedCount, "pages": res.PagesAffected, "flattened": res.Flattened,
	})
	return res, nil
}

func redact(ctx context.Context, in Input, areas []Area, opts Options, logger observability.Logger) (*Result, error) {
	for _, c := range opts.Color {
		if c < 0 || c > 1 {
			return nil, apperr.Validation("invalid redaction color", "components must be within 0..1")
		}
	}
	doc, err := document.OpenInput(ctx, in, opts.MaxFileSize, document.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := ValidateAreas(areas, doc.PageCount()); err != nil {
		return nil, err
	}

	groups := GroupByPage(areas)
	pages := SortedPages(groups)
	rects := make(map[int][]coords.Rect, len(pages))
	for _, p := range pages {
		page, err := doc.Page(p - 1)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindCorrupted, fmt.Sprintf("page %d could not be read", p), err)
		}
		rects[p] = pageRects(groups[p], page.VisibleBox(), page.Rotate)
	}

	covered := coverage(ctx, doc, pages, rects, logger)

	out := doc
	if opts.Flatten {
		out, err = flatten(ctx, doc, rects, opts)
	} else {
		err = overlay(ctx, doc, pages, rects, opts.Color)
	}
	if err != nil {
		return nil, document.ClassifyError(err)
	}
	if opts.StripMetadata {
		out.StripMetadata()
	}
	data, err := out.Bytes(ctx, writer.Config{Compress: true, Deterministic: opts.Deterministic})
	if err != nil {
		return nil, document.ClassifyError(err)
	}
	return &Result{
		Data:          data,
		RedactedCount: len(areas),
		PagesAffected: len(pages),
		PageCount:     doc.PageCount(),
		Flattened:     opts.Flatten,
		CoveredText:   covered[contentstream.KindText],
		CoveredImages: covered[contentstream.KindImage],
	}, nil
}

// coverage counts the painting operations of each kind that the boxes
// overlap. Pages whose content cannot be parsed are skipped.
func coverage(ctx context.Context, doc *document.Document, pages []int, rects map[int][]coords.Rect, logger observability.Logger) map[contentstream.Kind]int {
	counts := make(map[contentstream.Kind]int)
	for _, p := range pages {
		page, err := doc.Page(p - 1)
		if err != nil {
			continue
		}
		content, err := doc.PageContent(ctx, p-1)
		if err != nil {
			continue
		}
		ops, err := contentstream.Parse(ctx, content)
		if err != nil {
			logger.Debug("content not traced", observability.Int("page", p), observability.Error("error", err))
			continue
		}
		boxes := contentstream.Trace(ops, contentstream.ResourcesFrom(page.Resources, doc.Resolve))
		idx := contentstream.NewIndex(page.MediaBox, boxes)
		seen := make(map[int]bool)
		for _, r := range rects[p] {
			r = r.Normalize()
			for _, op := range idx.Query(coords.Box{LLX: r.X, LLY: r.Y, URX: r.X + r.W, URY: r.Y + r.H}) {
				if !seen[op.Index] {
					seen[op.Index] = true
					counts[op.Kind]++
				}
			}
		}
	}
	if n := counts[contentstream.KindText] + counts[contentstream.KindImage]; n > 0 {
		logger.Warn("redaction boxes cover content that remains in the file",
			observability.Int("text_operations", counts[contentstream.KindText]),
			observability.Int("image_operations", counts[contentstream.KindImage]))
	}
	return counts
}

// overlay wraps the existing content of each affected page in q/Q and
// appends the boxes after it.
func overlay(ctx context.Context, doc *document.Document, pages []int, rects map[int][]coords.Rect, color [3]float64) error {
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := doc.PrependContent(p-1, []byte("q\n")); err != nil {
			return err
		}
		var buf bytes.Buffer
		buf.WriteString("Q\n")
		writeBoxes(&buf, rects[p], color)
		if err := doc.AppendContent(p-1, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// flatten builds a new document where every page draws its original
// content through a form XObject, followed by the boxes for that page.
func flatten(ctx context.Context, src *document.Document, rects map[int][]coords.Rect, opts Options) (*document.Document, error) {
	dst := document.New()
	im := dst.NewImporter(src)
	for i := 0; i < src.PageCount(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := src.Page(i)
		if err != nil {
			return nil, err
		}
		content, err := src.PageContent(ctx, i)
		if err != nil {
			return nil, err
		}
		form := raw.Dict()
		form.Set("Type", raw.NameLiteral("XObject"))
		form.Set("Subtype", raw.NameLiteral("Form"))
		form.Set("BBox", document.BoxArray(page.MediaBox))
		form.Set("Matrix", raw.NewArray(raw.NumberInt(1), raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(1), raw.NumberInt(0), raw.NumberInt(0)))
		if page.Resources != nil {
			form.Set("Resources", im.Copy(page.Resources))
		} else {
			form.Set("Resources", raw.Dict())
		}
		formRef := dst.Add(raw.NewStream(form, content))

		xobjects := raw.Dict()
		xobjects.Set("Fm0", formRef)
		resources := raw.Dict()
		resources.Set("XObject", xobjects)

		var buf bytes.Buffer
		buf.WriteString("q /Fm0 Do Q\n")
		writeBoxes(&buf, rects[i+1], opts.Color)

		np := raw.Dict()
		np.Set("MediaBox", document.BoxArray(page.MediaBox))
		if page.HasCrop {
			np.Set("CropBox", document.BoxArray(page.CropBox))
		}
		if page.Rotate != 0 {
			np.Set("Rotate", raw.NumberInt(int64(page.Rotate)))
		}
		np.Set("Resources", resources)
		np.Set("Contents", dst.Add(raw.NewStream(nil, buf.Bytes())))
		if _, err := dst.AddPage(np); err != nil {
			return nil, err
		}
	}
	if !opts.StripMetadata {
		for k, v := range src.Info() {
			dst.SetInfo(k, v)
		}
	}
	return dst, nil
}

// writeBoxes emits one filled rectangle per rect, isolated in q/Q.
func writeBoxes(buf *bytes.Buffer, rects []coords.Rect, color [3]float64) {
	if len(rects) == 0 {
		return
	}
	buf.WriteString("q\n")
	for _, r := range rects {
		fmt.Fprintf(buf, "%s %s %s rg %s %s %s %s re f\n",
			writer.FormatReal(color[0]), writer.FormatReal(color[1]), writer.FormatReal(color[2]),
			writer.FormatReal(r.X), writer.FormatReal(r.Y), writer.FormatReal(r.W), writer.FormatReal(r.H))
	}
	buf.WriteString("Q\n")
}
