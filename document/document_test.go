package document_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wudi/privkit/coords"
	"github.com/wudi/privkit/document"
	"github.com/wudi/privkit/internal/pdftest"
	"github.com/wudi/privkit/ir/raw"
	"github.com/wudi/privkit/parser"
	"github.com/wudi/privkit/writer"
)

func open(t *testing.T, data []byte) *document.Document {
	t.Helper()
	doc, err := document.Open(context.Background(), data, document.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return doc
}

func TestOpenRoundTrip(t *testing.T) {
	data := pdftest.Build(t, pdftest.Pages(3), map[string]string{"Title": "Secret plan", "Author": "Zoë"})
	doc := open(t, data)
	if doc.PageCount() != 3 {
		t.Fatalf("expected 3 pages, got %d", doc.PageCount())
	}
	content, err := doc.PageContent(context.Background(), 1)
	if err != nil {
		t.Fatalf("page content: %v", err)
	}
	if !bytes.Contains(content, []byte("(Page 2) Tj")) {
		t.Fatalf("unexpected content %q", content)
	}
	info := doc.Info()
	if info["Title"] != "Secret plan" || info["Author"] != "Zoë" {
		t.Fatalf("info not preserved: %v", info)
	}
}

func TestPageInheritance(t *testing.T) {
	rd := raw.NewDocument("1.4")
	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalog.Set("Pages", raw.Ref(2, 0))
	res := raw.Dict()
	res.Set("ProcSet", raw.NewArray(raw.NameLiteral("PDF")))
	root := raw.Dict()
	root.Set("Type", raw.NameLiteral("Pages"))
	root.Set("Kids", raw.NewArray(raw.Ref(3, 0)))
	root.Set("Count", raw.NumberInt(2))
	root.Set("MediaBox", raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(595), raw.NumberInt(842)))
	root.Set("Resources", res)
	root.Set("Rotate", raw.NumberInt(-90))
	mid := raw.Dict()
	mid.Set("Type", raw.NameLiteral("Pages"))
	mid.Set("Parent", raw.Ref(2, 0))
	mid.Set("Kids", raw.NewArray(raw.Ref(4, 0), raw.Ref(5, 0), raw.Ref(4, 0)))
	mid.Set("Count", raw.NumberInt(2))
	p1 := raw.Dict()
	p1.Set("Type", raw.NameLiteral("Page"))
	p1.Set("Parent", raw.Ref(3, 0))
	p2 := raw.Dict()
	p2.Set("Type", raw.NameLiteral("Page"))
	p2.Set("Parent", raw.Ref(3, 0))
	p2.Set("CropBox", raw.NewArray(raw.NumberInt(10), raw.NumberInt(20), raw.NumberInt(300), raw.NumberInt(400)))
	p2.Set("Rotate", raw.NumberInt(0))
	rd.Objects[raw.ObjectRef{Num: 1}] = catalog
	rd.Objects[raw.ObjectRef{Num: 2}] = root
	rd.Objects[raw.ObjectRef{Num: 3}] = mid
	rd.Objects[raw.ObjectRef{Num: 4}] = p1
	rd.Objects[raw.ObjectRef{Num: 5}] = p2
	rd.Trailer.Set("Root", raw.Ref(1, 0))
	var buf bytes.Buffer
	if err := writer.Write(context.Background(), rd, &buf, writer.Config{}); err != nil {
		t.Fatal(err)
	}

	doc := open(t, buf.Bytes())
	if doc.PageCount() != 2 {
		t.Fatalf("repeated kid must be counted once, got %d pages", doc.PageCount())
	}
	first, err := doc.Page(0)
	if err != nil {
		t.Fatal(err)
	}
	if first.MediaBox.Width() != 595 || first.Rotate != 270 || first.Resources == nil {
		t.Fatalf("inherited attributes missing: %+v", first)
	}
	if first.VisibleBox() != first.MediaBox {
		t.Fatalf("visible box should fall back to MediaBox")
	}
	second, _ := doc.Page(1)
	if !second.HasCrop || second.VisibleBox() != (coords.Box{LLX: 10, LLY: 20, URX: 300, URY: 400}) || second.Rotate != 0 {
		t.Fatalf("unexpected second page %+v", second)
	}
	if _, err := doc.Page(2); !errors.Is(err, document.ErrPageOutOfRange) {
		t.Fatalf("expected ErrPageOutOfRange, got %v", err)
	}
}

func TestAppendAndPrependContent(t *testing.T) {
	doc := pdftest.New(t, pdftest.Pages(1), nil)
	if err := doc.PrependContent(0, []byte("q")); err != nil {
		t.Fatal(err)
	}
	if err := doc.AppendContent(0, []byte("Q 0 0 0 rg 1 2 3 4 re f")); err != nil {
		t.Fatal(err)
	}
	data, err := doc.Bytes(context.Background(), writer.Config{Compress: true})
	if err != nil {
		t.Fatal(err)
	}
	reopened := open(t, data)
	streams, _ := reopened.ContentStreams(0)
	if len(streams) != 3 {
		t.Fatalf("expected 3 content streams, got %d", len(streams))
	}
	content, err := reopened.PageContent(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(content), "q\nBT") || !strings.HasSuffix(string(content), "re f") {
		t.Fatalf("unexpected content order %q", content)
	}
}

func TestImportPageSharesResources(t *testing.T) {
	src := open(t, pdftest.Build(t, pdftest.Pages(3), nil))
	dst := document.New()
	im := dst.NewImporter(src)
	for _, i := range []int{2, 0} {
		if _, err := im.Import(context.Background(), i); err != nil {
			t.Fatalf("import %d: %v", i, err)
		}
	}
	data, err := dst.Bytes(context.Background(), writer.Config{})
	if err != nil {
		t.Fatal(err)
	}
	out := open(t, data)
	if out.PageCount() != 2 {
		t.Fatalf("expected 2 pages, got %d", out.PageCount())
	}
	c0, _ := out.PageContent(context.Background(), 0)
	c1, _ := out.PageContent(context.Background(), 1)
	if !bytes.Contains(c0, []byte("Page 3")) || !bytes.Contains(c1, []byte("Page 1")) {
		t.Fatalf("pages imported in wrong order: %q %q", c0, c1)
	}
	fonts := 0
	for _, obj := range out.Raw().Objects {
		if d, ok := obj.(*raw.DictObj); ok {
			if typ, _ := d.Name("Type"); typ == "Font" {
				fonts++
			}
		}
	}
	if fonts != 1 {
		t.Fatalf("shared font copied %d times", fonts)
	}
}

func TestStripMetadata(t *testing.T) {
	doc := pdftest.New(t, pdftest.Pages(1), map[string]string{"Producer": "Scanner 3000"})
	cat, _ := doc.Catalog()
	cat.Set("Metadata", doc.Add(raw.NewStream(nil, []byte("<x:xmpmeta/>"))))
	if n := doc.StripMetadata(); n != 2 {
		t.Fatalf("expected 2 removed entries, got %d", n)
	}
	data, err := doc.Bytes(context.Background(), writer.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("Scanner 3000")) || bytes.Contains(data, []byte("xmpmeta")) {
		t.Fatalf("metadata still present in output")
	}
	if len(open(t, data).Info()) != 0 {
		t.Fatalf("info dictionary should be gone")
	}
}

func TestPruneDropsUnreachable(t *testing.T) {
	doc := pdftest.New(t, pdftest.Pages(1), nil)
	orphan := doc.Add(raw.NewStream(nil, []byte("unused")))
	if n := doc.Prune(); n != 1 {
		t.Fatalf("expected 1 pruned object, got %d", n)
	}
	if _, ok := doc.Raw().Objects[orphan.R]; ok {
		t.Fatalf("orphan survived prune")
	}
}

func TestOpenRejectsEncrypted(t *testing.T) {
	data := pdftest.Build(t, pdftest.Pages(1), nil)
	// The writer only emits the trailer keys it owns, so splice /Encrypt in.
	data = bytes.Replace(data, []byte("trailer\n<<"), []byte("trailer\n<</Encrypt 99 0 R"), 1)
	_, err := document.Open(context.Background(), data, document.Options{})
	if !errors.Is(err, parser.ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}
}
