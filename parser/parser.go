package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/wudi/privkit/ir/raw"
	"github.com/wudi/privkit/observability"
	"github.com/wudi/privkit/recovery"
	"github.com/wudi/privkit/security"
	"github.com/wudi/privkit/xref"
)

var (
	ErrNotPDF         = errors.New("not a PDF: %PDF- header missing")
	ErrEncrypted      = errors.New("PDF is encrypted or password protected")
	ErrTooManyObjects = errors.New("object count exceeds limit")
	ErrMissingCatalog = errors.New("document catalog missing")
)

const headerSearchWindow = 1024

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	Recovery recovery.Strategy
	Limits   security.Limits
	Logger   observability.Logger
}

// DocumentParser builds a raw.Document from the bytes of a PDF file.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	cfg.Limits = cfg.Limits.WithDefaults()
	cfg.Logger = observability.OrNop(cfg.Logger)
	return &DocumentParser{cfg: cfg}
}

// Parse loads every live object. Object streams and xref streams are
// unpacked and left out of the result; encrypted files are rejected.
func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	version, err := headerVersion(data)
	if err != nil {
		return nil, err
	}
	resolver := xref.NewResolver(xref.ResolverConfig{
		MaxXRefDepth: p.cfg.Limits.MaxXRefDepth,
		Recovery:     p.cfg.Recovery,
	})
	table, err := resolver.Resolve(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	if table.Repaired {
		p.cfg.Logger.Warn("xref table rebuilt from object scan", observability.Int("objects", len(table.Entries)))
	}
	if _, ok := table.Trailer.Get("Encrypt"); ok {
		return nil, ErrEncrypted
	}
	objects := table.Objects()
	if len(objects) > p.cfg.Limits.MaxObjects {
		return nil, ErrTooManyObjects
	}

	loader, err := NewObjectLoaderBuilder(data).
		WithXRef(table).
		WithLimits(p.cfg.Limits).
		WithRecovery(p.cfg.Recovery).
		Build()
	if err != nil {
		return nil, err
	}

	doc := raw.NewDocument(version)
	doc.Trailer = raw.Clone(table.Trailer).(*raw.DictObj)
	var objStreams []int
	for _, num := range objects {
		if num == 0 {
			continue
		}
		e, _ := table.Lookup(num)
		ref := raw.ObjectRef{Num: num, Gen: e.Gen}
		if e.Type == xref.EntryCompressed {
			ref.Gen = 0
		}
		obj, err := loader.Load(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			loc := recovery.Location{ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: "parser"}
			if recovery.Tolerates(ctx, p.cfg.Recovery, err, loc) {
				continue
			}
			return nil, fmt.Errorf("load object %d: %w", num, err)
		}
		if stm, ok := obj.(*raw.StreamObj); ok {
			switch typ, _ := stm.Dict.Name("Type"); typ {
			case "ObjStm":
				objStreams = append(objStreams, num)
				continue
			case "XRef":
				continue
			}
		}
		doc.Objects[ref] = obj
	}

	// A rebuilt table only knows top-level objects; pull in the ones held
	// by object streams that no xref entry describes.
	for _, num := range objStreams {
		objs, err := loader.objectStream(ctx, num)
		if err != nil {
			continue
		}
		for n, obj := range objs {
			if _, known := table.Lookup(n); known {
				continue
			}
			doc.Objects[raw.ObjectRef{Num: n}] = obj
		}
	}
	if len(doc.Objects) > p.cfg.Limits.MaxObjects {
		return nil, ErrTooManyObjects
	}

	root, ok := doc.ResolveDict(doc.Trailer.KV["Root"])
	if !ok {
		return nil, ErrMissingCatalog
	}
	if v, ok := root.Name("Version"); ok && v > doc.Version {
		doc.Version = v
	}
	return doc, nil
}

// headerVersion finds "%PDF-x.y" near the start of the file.
func headerVersion(data []byte) (string, error) {
	window := data
	if len(window) > headerSearchWindow {
		window = window[:headerSearchWindow]
	}
	idx := bytes.Index(window, []byte("%PDF-"))
	if idx < 0 {
		return "", ErrNotPDF
	}
	rest := data[idx+5:]
	end := 0
	for end < len(rest) && end < 8 && (rest[end] == '.' || (rest[end] >= '0' && rest[end] <= '9')) {
		end++
	}
	if end == 0 {
		return "1.4", nil
	}
	return string(rest[:end]), nil
}
