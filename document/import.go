package document

import (
	"context"

	"github.com/wudi/privkit/ir/raw"
)

// Importer copies pages from one document into another. Objects shared by
// several imported pages (fonts, images) are copied once per Importer.
type Importer struct {
	dst    *Document
	src    *Document
	mapped map[raw.ObjectRef]raw.ObjectRef
}

func (d *Document) NewImporter(src *Document) *Importer {
	return &Importer{dst: d, src: src, mapped: make(map[raw.ObjectRef]raw.ObjectRef)}
}

// ImportPage appends a deep copy of src's zero-based page index.
func (d *Document) ImportPage(ctx context.Context, src *Document, index int) (raw.ObjectRef, error) {
	return d.NewImporter(src).Import(ctx, index)
}

// Import copies page index into the destination and appends it. Inherited
// attributes are materialized on the copy, /Parent is replaced, and links
// to other pages of the source are dropped so the copy never drags in the
// rest of the source page tree.
func (im *Importer) Import(ctx context.Context, index int) (raw.ObjectRef, error) {
	if err := ctx.Err(); err != nil {
		return raw.ObjectRef{}, err
	}
	page, err := im.src.Page(index)
	if err != nil {
		return raw.ObjectRef{}, err
	}
	copied := raw.Clone(page.Dict).(*raw.DictObj)
	copied.Delete("Parent")
	copied.Set("MediaBox", BoxArray(page.MediaBox))
	if page.HasCrop {
		copied.Set("CropBox", BoxArray(page.CropBox))
	}
	if page.Rotate != 0 {
		copied.Set("Rotate", raw.NumberInt(int64(page.Rotate)))
	}
	if _, ok := copied.Get("Resources"); !ok && page.Resources != nil {
		copied.Set("Resources", raw.Clone(page.Resources))
	}

	// Reserve the page's own number first so self references (annotation
	// /P entries) point at the copy.
	ref, err := im.dst.AddPage(raw.Dict())
	if err != nil {
		return raw.ObjectRef{}, err
	}
	im.mapped[page.Ref] = ref
	parent := im.dst.raw.Objects[ref].(*raw.DictObj).KV["Parent"]
	raw.Rewrite(copied, im.remap)
	copied.Set("Type", raw.NameLiteral("Page"))
	copied.Set("Parent", parent)
	im.dst.raw.Objects[ref] = copied
	return ref, nil
}

func (im *Importer) remap(r raw.ObjectRef) raw.Object {
	if nr, ok := im.mapped[r]; ok {
		return raw.RefObj{R: nr}
	}
	obj, ok := im.src.raw.Objects[r]
	if !ok {
		return raw.NullObj{}
	}
	if isPageNode(obj) {
		return raw.NullObj{}
	}
	nr := im.dst.Add(raw.NullObj{})
	im.mapped[r] = nr.R
	im.dst.raw.Objects[nr.R] = im.Copy(obj)
	return nr
}

func isPageNode(o raw.Object) bool {
	d, ok := o.(*raw.DictObj)
	if !ok {
		return false
	}
	typ, _ := d.Name("Type")
	return typ == "Page" || typ == "Pages"
}

// Copy deep-copies o from the source into the destination, remapping every
// reference it holds.
func (im *Importer) Copy(o raw.Object) raw.Object {
	return raw.Rewrite(raw.Clone(o), im.remap)
}
