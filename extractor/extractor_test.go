package extractor

import (
	"context"
	"strings"
	"testing"

	"github.com/wudi/privkit/apperr"
	"github.com/wudi/privkit/coords"
	"github.com/wudi/privkit/internal/pdftest"
	"github.com/wudi/privkit/ir/raw"
)

func TestExtractText(t *testing.T) {
	pages := pdftest.Pages(3)
	pages[1].Text = ""
	data := pdftest.Build(t, pages, nil)

	got, err := ExtractText(context.Background(), data)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 pages with text, got %+v", got)
	}
	if got[0].Page != 1 || !strings.Contains(got[0].Text, "Page 1") {
		t.Fatalf("unexpected first page %+v", got[0])
	}
	if got[1].Page != 3 || !strings.Contains(got[1].Text, "Page 3") {
		t.Fatalf("unexpected second page %+v", got[1])
	}
}

func TestPlainText(t *testing.T) {
	got := PlainText([]PageText{{Page: 1, Text: "a"}, {Page: 4, Text: "b"}})
	if got != "a\n\nb" {
		t.Fatalf("got %q", got)
	}
	if PlainText(nil) != "" {
		t.Fatal("expected empty text")
	}
}

func TestExtractTextErrors(t *testing.T) {
	if _, err := ExtractText(context.Background(), []byte("plain text")); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ExtractText(context.Background(), []byte("%PDF-1.7\ngarbage")); apperr.KindOf(err) != apperr.KindCorrupted {
		t.Fatalf("expected corrupted error, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	data := pdftest.Build(t, pdftest.Pages(1), nil)
	if _, err := ExtractText(ctx, data); apperr.KindOf(err) != apperr.KindCanceled {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestExtractMetadata(t *testing.T) {
	box := coords.Box{URX: 595, URY: 842}
	doc := pdftest.New(t, []pdftest.Page{{Text: "a"}, {Text: "b", Box: box, Rotate: 90}}, map[string]string{"Author": "J. Smith"})
	p, _ := doc.Page(1)
	p.Dict.Set("PieceInfo", raw.Dict())

	m, err := ExtractMetadata(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if m.PageCount != 2 || m.Info["Author"] != "J. Smith" || m.PageMetadata != 1 || !m.HasMetadata() {
		t.Fatalf("unexpected metadata %+v", m)
	}
	if got := m.Pages[1]; got.Width != 842 || got.Height != 595 || got.Rotate != 90 {
		t.Fatalf("unexpected page info %+v", got)
	}

	doc.StripMetadata()
	m, _ = ExtractMetadata(context.Background(), doc)
	if m.HasMetadata() {
		t.Fatalf("metadata left after strip: %+v", m)
	}
}

func TestExtractMetadataGeo(t *testing.T) {
	doc := pdftest.New(t, pdftest.Pages(2), nil)
	m := raw.Dict()
	m.Set("Subtype", raw.NameLiteral("GEO"))
	m.Set("GPTS", raw.NewArray(raw.NumberInt(10), raw.NumberInt(20), raw.NumberInt(10), raw.NumberInt(23), raw.NumberInt(12), raw.NumberInt(20)))
	m.Set("LPTS", raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(1), raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(1)))
	vp := raw.Dict()
	vp.Set("BBox", raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(612), raw.NumberInt(792)))
	vp.Set("Measure", doc.Add(m))
	p, _ := doc.Page(1)
	p.Dict.Set("VP", raw.NewArray(vp))

	meta, err := ExtractMetadata(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if meta.GeoPages != 1 || meta.Location == nil || !meta.HasMetadata() {
		t.Fatalf("geo registration not reported: %+v", meta)
	}
	if meta.Location.Lat != 11 || meta.Location.Lon != 21.5 {
		t.Fatalf("location %+v", *meta.Location)
	}

	if n := doc.StripMetadata(); n != 1 {
		t.Fatalf("expected 1 removed entry, got %d", n)
	}
	meta, _ = ExtractMetadata(context.Background(), doc)
	if meta.GeoPages != 0 || meta.HasMetadata() {
		t.Fatalf("geo data left after strip: %+v", meta)
	}
}
