// Package document is the page-level view of a PDF used by every privkit
// PDF operation: it opens bytes through the parser, exposes pages with
// inherited attributes resolved, lets callers add content and objects,
// and serializes the result through the writer.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/wudi/privkit/filters"
	"github.com/wudi/privkit/geo"
	"github.com/wudi/privkit/ir/raw"
	"github.com/wudi/privkit/observability"
	"github.com/wudi/privkit/parser"
	"github.com/wudi/privkit/recovery"
	"github.com/wudi/privkit/security"
	"github.com/wudi/privkit/writer"
)

var (
	ErrNoPages        = errors.New("document has no page tree")
	ErrPageOutOfRange = errors.New("page index out of range")
)

// maxTreeDepth bounds page tree recursion on malformed files.
const maxTreeDepth = 64

// Options control how a document is opened.
type Options struct {
	// Recovery defaults to a lenient strategy that repairs broken xref
	// tables and skips unreadable objects.
	Recovery recovery.Strategy
	Limits   security.Limits
	Logger   observability.Logger
}

// Document wraps a raw object graph plus its flattened page list.
type Document struct {
	raw      *raw.Document
	pages    []raw.ObjectRef
	pipeline *filters.Pipeline
	logger   observability.Logger
	nextNum  int
}

// Open parses data. Encrypted files fail with parser.ErrEncrypted.
func Open(ctx context.Context, data []byte, opts Options) (*Document, error) {
	opts.Logger = observability.OrNop(opts.Logger)
	if opts.Recovery == nil {
		opts.Recovery = recovery.Lenient(opts.Logger)
	}
	opts.Limits = opts.Limits.WithDefaults()
	rd, err := parser.NewDocumentParser(parser.Config{
		Recovery: opts.Recovery,
		Limits:   opts.Limits,
		Logger:   opts.Logger,
	}).Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	d := wrap(rd, opts)
	if err := d.collectPages(); err != nil {
		return nil, err
	}
	return d, nil
}

// New returns an empty document holding a catalog and an empty page tree.
func New() *Document {
	d := wrap(raw.NewDocument("1.7"), Options{})
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", raw.NewArray())
	pages.Set("Count", raw.NumberInt(0))
	pagesRef := d.Add(pages)
	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalog.Set("Pages", pagesRef)
	d.raw.Trailer.Set("Root", d.Add(catalog))
	return d
}

func wrap(rd *raw.Document, opts Options) *Document {
	limits := opts.Limits.WithDefaults()
	return &Document{
		raw:      rd,
		pipeline: filters.Standard(filters.Limits{MaxDecompressedSize: limits.MaxDecompressedSize}),
		logger:   observability.OrNop(opts.Logger),
		nextNum:  rd.MaxObjectNum() + 1,
	}
}

// Raw exposes the underlying object graph.
func (d *Document) Raw() *raw.Document { return d.raw }

func (d *Document) Version() string { return d.raw.Version }

func (d *Document) PageCount() int { return len(d.pages) }

// PageRefs returns the page object references in document order.
func (d *Document) PageRefs() []raw.ObjectRef {
	return append([]raw.ObjectRef(nil), d.pages...)
}

// Resolve follows references; dangling ones yield NullObj.
func (d *Document) Resolve(o raw.Object) raw.Object {
	r, err := d.raw.Resolve(o)
	if err != nil {
		return raw.NullObj{}
	}
	return r
}

func (d *Document) resolveDict(o raw.Object) (*raw.DictObj, bool) {
	return d.raw.ResolveDict(o)
}

// Add stores obj as a new indirect object.
func (d *Document) Add(obj raw.Object) raw.RefObj {
	ref := raw.ObjectRef{Num: d.nextNum}
	d.nextNum++
	d.raw.Objects[ref] = obj
	return raw.RefObj{R: ref}
}

// Set replaces the indirect object at ref.
func (d *Document) Set(ref raw.ObjectRef, obj raw.Object) {
	d.raw.Objects[ref] = obj
	if ref.Num >= d.nextNum {
		d.nextNum = ref.Num + 1
	}
}

// Catalog returns the document catalog.
func (d *Document) Catalog() (*raw.DictObj, bool) {
	return d.resolveDict(d.raw.Trailer.KV["Root"])
}

func (d *Document) pagesRoot() (*raw.DictObj, error) {
	cat, ok := d.Catalog()
	if !ok {
		return nil, parser.ErrMissingCatalog
	}
	pages, ok := d.resolveDict(cat.KV["Pages"])
	if !ok {
		return nil, ErrNoPages
	}
	return pages, nil
}

// collectPages flattens the page tree. Kids already visited are skipped so
// a cyclic tree cannot loop.
func (d *Document) collectPages() error {
	cat, ok := d.Catalog()
	if !ok {
		return parser.ErrMissingCatalog
	}
	root, ok := cat.Get("Pages")
	if !ok {
		return ErrNoPages
	}
	seen := make(map[raw.ObjectRef]bool)
	d.pages = d.pages[:0]
	d.walkTree(root, seen, 0)
	return nil
}

func (d *Document) walkTree(node raw.Object, seen map[raw.ObjectRef]bool, depth int) {
	ref, isRef := node.(raw.RefObj)
	if !isRef || depth > maxTreeDepth || seen[ref.R] {
		return
	}
	seen[ref.R] = true
	dict, ok := d.resolveDict(ref)
	if !ok {
		return
	}
	typ, _ := dict.Name("Type")
	kids, hasKids := dict.Get("Kids")
	if typ == "Page" || (typ != "Pages" && !hasKids) {
		d.pages = append(d.pages, ref.R)
		return
	}
	arr, ok := d.Resolve(kids).(*raw.ArrayObj)
	if !ok {
		d.logger.Warn("page tree node without /Kids array", observability.String("ref", ref.R.String()))
		return
	}
	for _, kid := range arr.Items {
		d.walkTree(kid, seen, depth+1)
	}
}

// AddPage appends page to the root of the page tree.
func (d *Document) AddPage(page *raw.DictObj) (raw.ObjectRef, error) {
	cat, ok := d.Catalog()
	if !ok {
		return raw.ObjectRef{}, parser.ErrMissingCatalog
	}
	rootRef, ok := cat.KV["Pages"].(raw.RefObj)
	if !ok {
		return raw.ObjectRef{}, ErrNoPages
	}
	root, err := d.pagesRoot()
	if err != nil {
		return raw.ObjectRef{}, err
	}
	page.Set("Type", raw.NameLiteral("Page"))
	page.Set("Parent", rootRef)
	ref := d.Add(page)

	kids, ok := d.Resolve(root.KV["Kids"]).(*raw.ArrayObj)
	if !ok {
		kids = raw.NewArray()
		root.Set("Kids", kids)
	}
	kids.Append(ref)
	count, _ := root.Int("Count")
	root.Set("Count", raw.NumberInt(count+1))
	d.pages = append(d.pages, ref.R)
	return ref.R, nil
}

// AppendContent adds a content stream after the existing page content.
func (d *Document) AppendContent(index int, content []byte) error {
	return d.addContent(index, content, false)
}

// PrependContent adds a content stream ahead of the existing page content.
func (d *Document) PrependContent(index int, content []byte) error {
	return d.addContent(index, content, true)
}

func (d *Document) addContent(index int, content []byte, front bool) error {
	dict, err := d.pageDict(index)
	if err != nil {
		return err
	}
	ref := d.Add(raw.NewStream(nil, content))
	var streams []raw.Object
	switch v := d.contentsEntry(dict).(type) {
	case *raw.ArrayObj:
		streams = append(streams, v.Items...)
	case raw.RefObj:
		streams = append(streams, v)
	}
	if front {
		streams = append([]raw.Object{ref}, streams...)
	} else {
		streams = append(streams, ref)
	}
	dict.Set("Contents", raw.NewArray(streams...))
	return nil
}

// contentsEntry returns /Contents with an indirect array resolved.
func (d *Document) contentsEntry(page *raw.DictObj) raw.Object {
	c, ok := page.Get("Contents")
	if !ok {
		return nil
	}
	if ref, isRef := c.(raw.RefObj); isRef {
		if arr, ok := d.Resolve(ref).(*raw.ArrayObj); ok {
			return arr
		}
	}
	return c
}

// ContentStreams returns the page content streams in drawing order.
func (d *Document) ContentStreams(index int) ([]*raw.StreamObj, error) {
	dict, err := d.pageDict(index)
	if err != nil {
		return nil, err
	}
	var refs []raw.Object
	switch v := d.contentsEntry(dict).(type) {
	case *raw.ArrayObj:
		refs = v.Items
	case nil:
	default:
		refs = []raw.Object{v}
	}
	out := make([]*raw.StreamObj, 0, len(refs))
	for _, r := range refs {
		if stm, ok := d.Resolve(r).(*raw.StreamObj); ok {
			out = append(out, stm)
		}
	}
	return out, nil
}

// PageContent returns the decoded page content streams joined by newlines.
func (d *Document) PageContent(ctx context.Context, index int) ([]byte, error) {
	streams, err := d.ContentStreams(index)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for i, stm := range streams {
		data, err := d.pipeline.DecodeStream(ctx, stm)
		if err != nil {
			return nil, fmt.Errorf("page %d content stream %d: %w", index+1, i, err)
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// DecodeStream decodes stm through the document's filter pipeline.
func (d *Document) DecodeStream(ctx context.Context, stm *raw.StreamObj) ([]byte, error) {
	return d.pipeline.DecodeStream(ctx, stm)
}

// Info returns the text entries of the document information dictionary.
func (d *Document) Info() map[string]string {
	out := make(map[string]string)
	info, ok := d.resolveDict(d.raw.Trailer.KV["Info"])
	if !ok {
		return out
	}
	for _, k := range info.Keys() {
		if s, ok := d.Resolve(info.KV[k]).(raw.StringObj); ok {
			out[k] = decodeText(s.Bytes)
		}
	}
	return out
}

// SetInfo sets a document information entry, creating the dictionary when
// needed. An empty value deletes the entry.
func (d *Document) SetInfo(key, value string) {
	info, ok := d.resolveDict(d.raw.Trailer.KV["Info"])
	if !ok {
		info = raw.Dict()
		d.raw.Trailer.Set("Info", d.Add(info))
	}
	if value == "" {
		info.Delete(key)
		return
	}
	info.Set(key, raw.Str(encodeText(value)))
}

// StripMetadata removes the information dictionary and every XMP
// /Metadata stream reachable from the catalog or the pages, along with
// page geospatial registration. It returns the number of entries removed.
func (d *Document) StripMetadata() int {
	removed := 0
	drop := func(o raw.Object) {
		if ref, ok := o.(raw.RefObj); ok {
			delete(d.raw.Objects, ref.R)
		}
		removed++
	}
	if info, ok := d.raw.Trailer.Get("Info"); ok {
		drop(info)
		d.raw.Trailer.Delete("Info")
	}
	dicts := make([]*raw.DictObj, 0, len(d.pages)+1)
	if cat, ok := d.Catalog(); ok {
		dicts = append(dicts, cat)
	}
	for _, ref := range d.pages {
		if page, ok := d.resolveDict(raw.RefObj{R: ref}); ok {
			dicts = append(dicts, page)
		}
	}
	for _, dict := range dicts {
		for _, key := range []string{"Metadata", "PieceInfo"} {
			if v, ok := dict.Get(key); ok {
				drop(v)
				dict.Delete(key)
			}
		}
		if geo.Strip(dict, d.Resolve) {
			removed++
		}
	}
	return removed
}

// Bytes serializes the document.
func (d *Document) Bytes(ctx context.Context, cfg writer.Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := writer.Write(ctx, d.raw, &buf, cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Prune drops every object not reachable from the trailer and returns how
// many were removed.
func (d *Document) Prune() int {
	live := d.Reachable()
	removed := 0
	for ref := range d.raw.Objects {
		if !live[ref] {
			delete(d.raw.Objects, ref)
			removed++
		}
	}
	return removed
}

// Reachable marks every object referenced, directly or not, from the
// trailer's /Root and /Info.
func (d *Document) Reachable() map[raw.ObjectRef]bool {
	live := make(map[raw.ObjectRef]bool)
	var queue []raw.ObjectRef
	visit := func(o raw.Object) {
		raw.Walk(o, func(n raw.Object) {
			if r, ok := n.(raw.RefObj); ok && !live[r.R] {
				if _, exists := d.raw.Objects[r.R]; exists {
					live[r.R] = true
					queue = append(queue, r.R)
				}
			}
		})
	}
	for _, key := range []string{"Root", "Info"} {
		if v, ok := d.raw.Trailer.Get(key); ok {
			visit(v)
		}
	}
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		visit(d.raw.Objects[ref])
	}
	return live
}
