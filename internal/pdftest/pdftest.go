// Package pdftest builds small PDF fixtures for tests.
package pdftest

import (
	"context"
	"fmt"
	"testing"

	"github.com/wudi/privkit/coords"
	"github.com/wudi/privkit/document"
	"github.com/wudi/privkit/ir/raw"
	"github.com/wudi/privkit/writer"
)

// Page describes one fixture page. A zero Box means US Letter.
type Page struct {
	Box     coords.Box
	Text    string
	Rotate  int
	CropBox *coords.Box
}

// Pages returns n letter pages whose text is "Page i".
func Pages(n int) []Page {
	out := make([]Page, n)
	for i := range out {
		out[i] = Page{Text: fmt.Sprintf("Page %d", i+1)}
	}
	return out
}

// Build writes a document with one Helvetica font shared by every page.
func Build(t testing.TB, pages []Page, info map[string]string) []byte {
	t.Helper()
	doc := New(t, pages, info)
	data, err := doc.Bytes(context.Background(), writer.Config{Deterministic: true})
	if err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return data
}

// New builds the fixture document in memory.
func New(t testing.TB, pages []Page, info map[string]string) *document.Document {
	t.Helper()
	doc := document.New()
	font := raw.Dict()
	font.Set("Type", raw.NameLiteral("Font"))
	font.Set("Subtype", raw.NameLiteral("Type1"))
	font.Set("BaseFont", raw.NameLiteral("Helvetica"))
	fontRef := doc.Add(font)

	for _, p := range pages {
		box := p.Box
		if box.Width() == 0 {
			box = coords.Box{URX: 612, URY: 792}
		}
		content := fmt.Sprintf("BT /F1 12 Tf %g %g Td (%s) Tj ET", box.LLX+72, box.URY-72, p.Text)
		fonts := raw.Dict()
		fonts.Set("F1", fontRef)
		res := raw.Dict()
		res.Set("Font", fonts)

		page := raw.Dict()
		page.Set("MediaBox", document.BoxArray(box))
		if p.CropBox != nil {
			page.Set("CropBox", document.BoxArray(*p.CropBox))
		}
		if p.Rotate != 0 {
			page.Set("Rotate", raw.NumberInt(int64(p.Rotate)))
		}
		page.Set("Resources", res)
		page.Set("Contents", doc.Add(raw.NewStream(nil, []byte(content))))
		if _, err := doc.AddPage(page); err != nil {
			t.Fatalf("add page: %v", err)
		}
	}
	for k, v := range info {
		doc.SetInfo(k, v)
	}
	return doc
}
