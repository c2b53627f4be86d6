// Package extractor pulls the text layer and document properties out of
// PDF files.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/wudi/privkit/apperr"
	"github.com/wudi/privkit/fileutil"
	"github.com/wudi/privkit/observability"
)

// PageText is the text of one page. Page is one-based.
type PageText struct {
	Page int
	Text string
}

type Config struct {
	// MaxFileSize bounds the input; zero means unlimited.
	MaxFileSize int64
	Logger      observability.Logger
	Tracker     observability.Tracker
}

type Extractor struct {
	cfg    Config
	logger observability.Logger
}

func New(cfg Config) *Extractor {
	return &Extractor{cfg: cfg, logger: observability.OrNop(cfg.Logger).With(observability.String("op", "text"))}
}

// ExtractText returns the text of every page that has any.
func ExtractText(ctx context.Context, data []byte) ([]PageText, error) {
	return New(Config{}).ExtractText(ctx, "", data)
}

// PlainText joins pages with a blank line between them.
func PlainText(pages []PageText) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

// ExtractText reads the text layer of data. Pages without text, or whose
// text cannot be decoded, are left out. Scanned pages have no text layer.
func (e *Extractor) ExtractText(ctx context.Context, name string, data []byte) ([]PageText, error) {
	pages, err := e.extract(ctx, name, data)
	if err != nil {
		observability.SafeTrack(ctx, e.cfg.Tracker, observability.EventToolError, map[string]interface{}{
			"tool": "text", "kind": string(apperr.KindOf(err)),
		})
		return nil, err
	}
	e.logger.Info("extracted text", observability.String("file", name), observability.Int("pages", len(pages)))
	observability.SafeTrack(ctx, e.cfg.Tracker, observability.EventTextProcessed, map[string]interface{}{
		"tool": "pdf_text", "pages": len(pages),
	})
	return pages, nil
}

func (e *Extractor) extract(ctx context.Context, name string, data []byte) ([]PageText, error) {
	if v := fileutil.ValidatePDF(name, data, e.cfg.MaxFileSize); !v.IsValid {
		return nil, apperr.Validation("invalid input file", v.Error)
	}
	r, err := openReader(data)
	if err != nil {
		return nil, err
	}
	var out []PageText
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Classify(err)
		}
		text, err := pageText(r, i)
		if err != nil {
			e.logger.Warn("skipping unreadable page", observability.Int("page", i), observability.Error("error", err))
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, PageText{Page: i, Text: text})
		}
	}
	return out, nil
}

func openReader(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = apperr.Wrap(apperr.KindCorrupted, "the PDF could not be read", fmt.Errorf("%v", p))
		}
	}()
	r, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, classify(err)
	}
	return r, nil
}

// pageText reads one page. The reader panics on some malformed content,
// which is reported as an error.
func pageText(r *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("page %d: %v", num, p)
		}
	}()
	page := r.Page(num)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

func classify(err error) error {
	ae := apperr.Classify(err)
	if ae.Kind == apperr.KindInternal {
		return apperr.Wrap(apperr.KindCorrupted, "the PDF could not be read", err)
	}
	return ae
}
