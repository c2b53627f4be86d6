package redact

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/wudi/privkit/apperr"
	"github.com/wudi/privkit/coords"
	"github.com/wudi/privkit/document"
	"github.com/wudi/privkit/internal/pdftest"
	"github.com/wudi/privkit/ir/raw"
	"github.com/wudi/privkit/observability"
)

func TestValidateAreas(t *testing.T) {
	good := Area{PageNumber: 1, X: 1, Y: 1, Width: 10, Height: 10}
	if err := ValidateAreas([]Area{good}, 1); err != nil {
		t.Fatalf("valid area rejected: %v", err)
	}
	cases := []struct {
		name  string
		areas []Area
		want  string
	}{
		{"empty", nil, "no redaction areas"},
		{"zero width", []Area{good, {PageNumber: 1, Width: 0, Height: 5}}, "area 1: width"},
		{"negative height", []Area{{PageNumber: 1, Width: 5, Height: -1}}, "area 0: height"},
		{"page zero", []Area{{PageNumber: 0, Width: 5, Height: 5}}, "page 0 is outside 1..3"},
		{"page past end", []Area{{PageNumber: 4, Width: 5, Height: 5}}, "page 4 is outside 1..3"},
		{"nan", []Area{{PageNumber: 1, X: math.NaN(), Width: 5, Height: 5}}, "finite"},
	}
	for _, tc := range cases {
		err := ValidateAreas(tc.areas, 3)
		if apperr.KindOf(err) != apperr.KindValidation || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
	}
}

func TestToPDFSpace(t *testing.T) {
	r := ToPDFSpace(Area{X: 50, Y: 100, Width: 200, Height: 30}, 792)
	if r != (coords.Rect{X: 50, Y: 662, W: 200, H: 30}) {
		t.Fatalf("unexpected rect %+v", r)
	}
}

func TestGroupByPage(t *testing.T) {
	areas := []Area{
		{PageNumber: 2, X: 1}, {PageNumber: 1, X: 2}, {PageNumber: 2, X: 3},
	}
	groups := GroupByPage(areas)
	if len(groups[2]) != 2 || groups[2][0].X != 1 || groups[2][1].X != 3 {
		t.Fatalf("order within page lost: %+v", groups[2])
	}
	if pages := SortedPages(groups); len(pages) != 2 || pages[0] != 1 || pages[1] != 2 {
		t.Fatalf("unexpected page order %v", pages)
	}
}

func TestPageRectsRotation(t *testing.T) {
	box := coords.Box{URX: 612, URY: 792}
	got := pageRects([]Area{{PageNumber: 1, Width: 10, Height: 20}}, box, 90)[0]
	if math.Abs(got.X) > 1e-9 || math.Abs(got.Y) > 1e-9 || got.W != 20 || got.H != 10 {
		t.Fatalf("rotated rect %+v", got)
	}
	shifted := pageRects([]Area{{PageNumber: 1, X: 5, Y: 5, Width: 10, Height: 10}}, coords.Box{LLX: 100, LLY: 50, URX: 300, URY: 250}, 0)[0]
	if shifted != (coords.Rect{X: 105, Y: 235, W: 10, H: 10}) {
		t.Fatalf("crop origin not applied: %+v", shifted)
	}
}

func threePages(t *testing.T) Input {
	return Input{Name: "statement.pdf", Data: pdftest.Build(t, pdftest.Pages(3), map[string]string{"Title": "Bank statement"})}
}

func reopen(t *testing.T, data []byte) *document.Document {
	t.Helper()
	doc, err := document.Open(context.Background(), data, document.Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	return doc
}

func TestRedactUnflattened(t *testing.T) {
	var events []string
	tracker := observability.TrackerFunc(func(_ context.Context, event string, _ map[string]interface{}) error {
		events = append(events, event)
		return nil
	})
	areas := []Area{
		{PageNumber: 2, X: 10, Y: 20, Width: 100, Height: 40},
		{PageNumber: 1, X: 50, Y: 100, Width: 200, Height: 30},
	}
	res, err := Redact(context.Background(), threePages(t), areas, Options{Deterministic: true, Tracker: tracker})
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	if res.RedactedCount != 2 || res.PagesAffected != 2 || res.PageCount != 3 || res.Flattened {
		t.Fatalf("unexpected result %+v", res)
	}
	doc := reopen(t, res.Data)
	for i, want := range []int{3, 3, 1} {
		streams, _ := doc.ContentStreams(i)
		if len(streams) != want {
			t.Fatalf("page %d: expected %d content streams, got %d", i+1, want, len(streams))
		}
	}
	content, _ := doc.PageContent(context.Background(), 0)
	if !bytes.HasPrefix(content, []byte("q\n")) || !bytes.Contains(content, []byte("0 0 0 rg 50 662 200 30 re f")) {
		t.Fatalf("page 1 content %q", content)
	}
	if !bytes.Contains(content, []byte("(Page 1) Tj")) {
		t.Fatalf("original content must be kept in unflattened mode")
	}
	if len(events) != 1 || events[0] != observability.EventPDFRedacted {
		t.Fatalf("unexpected events %v", events)
	}
	if doc.Info()["Title"] != "Bank statement" {
		t.Fatalf("metadata dropped without StripMetadata")
	}
}

func TestRedactFlattened(t *testing.T) {
	areas := []Area{{PageNumber: 3, X: 0, Y: 0, Width: 612, Height: 100}}
	res, err := Redact(context.Background(), threePages(t), areas, Options{
		Flatten: true, Color: [3]float64{1, 0, 0}, StripMetadata: true,
	})
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	if !res.Flattened || res.PageCount != 3 || res.RedactedCount != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	doc := reopen(t, res.Data)
	if doc.PageCount() != 3 {
		t.Fatalf("expected 3 pages, got %d", doc.PageCount())
	}
	if len(doc.Info()) != 0 {
		t.Fatalf("metadata kept despite StripMetadata")
	}
	for i := 0; i < 3; i++ {
		page, _ := doc.Page(i)
		xobj, ok := doc.Raw().ResolveDict(page.Resources.KV["XObject"])
		if !ok {
			t.Fatalf("page %d has no XObject resources", i+1)
		}
		form, ok := doc.Resolve(xobj.KV["Fm0"]).(*raw.StreamObj)
		if !ok {
			t.Fatalf("page %d: Fm0 is not a stream", i+1)
		}
		data, err := doc.DecodeStream(context.Background(), form)
		if err != nil || !bytes.Contains(data, []byte("Tj")) {
			t.Fatalf("page %d: form content %q (%v)", i+1, data, err)
		}
		content, _ := doc.PageContent(context.Background(), i)
		hasBox := bytes.Contains(content, []byte("1 0 0 rg 0 692 612 100 re f"))
		if hasBox != (i == 2) {
			t.Fatalf("page %d content %q", i+1, content)
		}
	}
}

func TestRedactRejectsBeforeTouching(t *testing.T) {
	in := threePages(t)
	orig := append([]byte(nil), in.Data...)
	_, err := Redact(context.Background(), in, []Area{{PageNumber: 5, Width: 1, Height: 1}}, Options{})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !bytes.Equal(orig, in.Data) {
		t.Fatalf("input modified")
	}
}

func TestRedactErrorKinds(t *testing.T) {
	area := []Area{{PageNumber: 1, Width: 1, Height: 1}}
	ctx := context.Background()

	_, err := Redact(ctx, Input{Name: "notes.txt", Data: []byte("hello")}, area, Options{})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("non-PDF: %v", err)
	}
	_, err = Redact(ctx, threePages(t), area, Options{MaxFileSize: 10})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("oversize: %v", err)
	}
	_, err = Redact(ctx, Input{Name: "broken.pdf", Data: []byte("%PDF-1.4\ngarbage")}, area, Options{})
	if apperr.KindOf(err) != apperr.KindCorrupted {
		t.Fatalf("corrupted: %v", err)
	}
	enc := bytes.Replace(threePages(t).Data, []byte("trailer\n<<"), []byte("trailer\n<</Encrypt 99 0 R"), 1)
	_, err = Redact(ctx, Input{Name: "locked.pdf", Data: enc}, area, Options{})
	if apperr.KindOf(err) != apperr.KindEncrypted {
		t.Fatalf("encrypted: %v", err)
	}
	_, err = Redact(ctx, threePages(t), area, Options{Color: [3]float64{2, 0, 0}})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("bad color: %v", err)
	}
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Redact(canceled, threePages(t), area, Options{})
	if apperr.KindOf(err) != apperr.KindCanceled {
		t.Fatalf("canceled: %v", err)
	}
}

func TestRedactReportsCoveredContent(t *testing.T) {
	areas := []Area{
		// "Page 1" is drawn at 72,720 in 12pt Helvetica.
		{PageNumber: 1, X: 60, Y: 50, Width: 100, Height: 30},
		{PageNumber: 1, X: 70, Y: 55, Width: 20, Height: 20},
		{PageNumber: 2, X: 300, Y: 500, Width: 50, Height: 50},
	}
	res, err := Redact(context.Background(), threePages(t), areas, Options{Deterministic: true})
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	if res.CoveredText != 1 || res.CoveredImages != 0 {
		t.Fatalf("covered text %d, images %d; want 1 and 0", res.CoveredText, res.CoveredImages)
	}
}
