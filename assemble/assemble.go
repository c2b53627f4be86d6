// Package assemble merges PDFs and splits them into page ranges.
package assemble

import (
	"context"
	"fmt"
	"strings"

	"github.com/wudi/privkit/apperr"
	"github.com/wudi/privkit/document"
	"github.com/wudi/privkit/observability"
	"github.com/wudi/privkit/writer"
)

type Input = document.Input

type Config struct {
	// MaxFileSize bounds each input; zero means unlimited.
	MaxFileSize   int64
	Compress      bool
	Deterministic bool
	Logger        observability.Logger
	Tracker       observability.Tracker
}

type Assembler struct {
	cfg    Config
	logger observability.Logger
}

func New(cfg Config) *Assembler {
	return &Assembler{cfg: cfg, logger: observability.OrNop(cfg.Logger)}
}

// Merge concatenates the pages of every input in order.
func Merge(ctx context.Context, inputs []Input) ([]byte, error) {
	return New(Config{Compress: true}).Merge(ctx, inputs)
}

// Split writes one document per range.
func Split(ctx context.Context, in Input, ranges []Range) ([][]byte, error) {
	return New(Config{Compress: true}).Split(ctx, in, ranges)
}

// SplitEach writes one document per page.
func SplitEach(ctx context.Context, in Input) ([][]byte, error) {
	return New(Config{Compress: true}).SplitEach(ctx, in)
}

// ExtractPages writes one document holding the given one-based pages in
// the given order.
func ExtractPages(ctx context.Context, in Input, pages []int) ([]byte, error) {
	return New(Config{Compress: true}).ExtractPages(ctx, in, pages)
}

func (a *Assembler) open(ctx context.Context, in Input) (*document.Document, error) {
	doc, err := document.OpenInput(ctx, in, a.cfg.MaxFileSize, document.Options{Logger: a.logger})
	if err != nil {
		ae := apperr.Classify(err)
		details := ae.Details
		if in.Name != "" {
			details = strings.TrimSuffix(in.Name+": "+details, ": ")
		}
		return nil, &apperr.Error{Kind: ae.Kind, Message: ae.Message, Details: details, Cause: err}
	}
	return doc, nil
}

func (a *Assembler) bytes(ctx context.Context, doc *document.Document) ([]byte, error) {
	data, err := doc.Bytes(ctx, writer.Config{Compress: a.cfg.Compress, Deterministic: a.cfg.Deterministic})
	if err != nil {
		return nil, document.ClassifyError(err)
	}
	return data, nil
}

func (a *Assembler) Merge(ctx context.Context, inputs []Input) ([]byte, error) {
	if len(inputs) < 2 {
		return nil, apperr.Validation("merge needs at least two PDF files", fmt.Sprintf("got %d", len(inputs)))
	}
	docs := make([]*document.Document, len(inputs))
	for i, in := range inputs {
		doc, err := a.open(ctx, in)
		if err != nil {
			return nil, err
		}
		docs[i] = doc
	}
	out := document.New()
	pages := 0
	for _, src := range docs {
		im := out.NewImporter(src)
		for p := 0; p < src.PageCount(); p++ {
			if _, err := im.Import(ctx, p); err != nil {
				return nil, document.ClassifyError(err)
			}
			pages++
		}
	}
	data, err := a.bytes(ctx, out)
	if err != nil {
		return nil, err
	}
	a.logger.Info("merged documents", observability.Int("inputs", len(inputs)), observability.Int("pages", pages))
	observability.SafeTrack(ctx, a.cfg.Tracker, observability.EventPDFMerged, map[string]interface{}{
		"files": len(inputs), "pages": pages,
	})
	return data, nil
}

func (a *Assembler) Split(ctx context.Context, in Input, ranges []Range) ([][]byte, error) {
	src, err := a.open(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(ranges) == 0 {
		return nil, apperr.Validation("no page ranges given")
	}
	for _, r := range ranges {
		if err := r.validate(src.PageCount()); err != nil {
			return nil, apperr.Validation("invalid page range", fmt.Sprintf("%s: %v", r, err))
		}
	}
	out := make([][]byte, 0, len(ranges))
	for _, r := range ranges {
		pages := make([]int, 0, r.Len())
		for p := r.From; p <= r.To; p++ {
			pages = append(pages, p)
		}
		data, err := a.extract(ctx, src, pages)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	a.logger.Info("split document", observability.Int("parts", len(out)))
	observability.SafeTrack(ctx, a.cfg.Tracker, observability.EventPDFSplit, map[string]interface{}{
		"parts": len(out), "pages": src.PageCount(),
	})
	return out, nil
}

func (a *Assembler) SplitEach(ctx context.Context, in Input) ([][]byte, error) {
	src, err := a.open(ctx, in)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, src.PageCount())
	for p := 1; p <= src.PageCount(); p++ {
		data, err := a.extract(ctx, src, []int{p})
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	observability.SafeTrack(ctx, a.cfg.Tracker, observability.EventPDFSplit, map[string]interface{}{
		"parts": len(out), "pages": src.PageCount(),
	})
	return out, nil
}

func (a *Assembler) ExtractPages(ctx context.Context, in Input, pages []int) ([]byte, error) {
	src, err := a.open(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, apperr.Validation("no pages selected")
	}
	for _, p := range pages {
		if p < 1 || p > src.PageCount() {
			return nil, apperr.Validation("invalid page selection", fmt.Sprintf("page %d is outside 1..%d", p, src.PageCount()))
		}
	}
	return a.extract(ctx, src, pages)
}

// extract copies the one-based pages of src into a new document. Pages
// share one importer so common resources are written once.
func (a *Assembler) extract(ctx context.Context, src *document.Document, pages []int) ([]byte, error) {
	out := document.New()
	im := out.NewImporter(src)
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Classify(err)
		}
		if _, err := im.Import(ctx, p-1); err != nil {
			return nil, document.ClassifyError(err)
		}
	}
	return a.bytes(ctx, out)
}
