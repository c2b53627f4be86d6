package assemble

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/wudi/privkit/apperr"
	"github.com/wudi/privkit/document"
	"github.com/wudi/privkit/internal/pdftest"
	"github.com/wudi/privkit/observability"
)

func input(t *testing.T, name string, pages int) Input {
	return Input{Name: name, Data: pdftest.Build(t, pdftest.Pages(pages), nil)}
}

// pageTexts returns the "Page n" label drawn on every page of data.
func pageTexts(t *testing.T, data []byte) []string {
	t.Helper()
	doc, err := document.Open(context.Background(), data, document.Options{})
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	var out []string
	for i := 0; i < doc.PageCount(); i++ {
		c, err := doc.PageContent(context.Background(), i)
		if err != nil {
			t.Fatal(err)
		}
		start := bytes.IndexByte(c, '(')
		end := bytes.IndexByte(c, ')')
		out = append(out, string(c[start+1:end]))
	}
	return out
}

func TestParseRanges(t *testing.T) {
	got, err := ParseRanges(" 1-3, 5 ,7-,-2", 9)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []Range{{1, 3}, {5, 5}, {7, 9}, {1, 2}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for _, bad := range []string{"", ",", "0", "3-1", "2-10", "a-b", "1-x"} {
		if _, err := ParseRanges(bad, 9); apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("ParseRanges(%q) should fail validation, got %v", bad, err)
		}
	}
}

func TestMerge(t *testing.T) {
	var merged map[string]interface{}
	a := New(Config{Deterministic: true, Tracker: observability.TrackerFunc(
		func(_ context.Context, event string, props map[string]interface{}) error {
			if event == observability.EventPDFMerged {
				merged = props
			}
			return nil
		})})
	data, err := a.Merge(context.Background(), []Input{input(t, "a.pdf", 2), input(t, "b.pdf", 3)})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	got := strings.Join(pageTexts(t, data), ",")
	if got != "Page 1,Page 2,Page 1,Page 2,Page 3" {
		t.Fatalf("unexpected page order %s", got)
	}
	if merged["pages"] != 5 || merged["files"] != 2 {
		t.Fatalf("unexpected analytics %v", merged)
	}
}

func TestMergeValidation(t *testing.T) {
	if _, err := Merge(context.Background(), []Input{input(t, "a.pdf", 1)}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("single input should fail validation, got %v", err)
	}
	bad := Input{Name: "broken.pdf", Data: []byte("%PDF-1.4 nothing here")}
	_, err := Merge(context.Background(), []Input{input(t, "a.pdf", 1), bad})
	if apperr.KindOf(err) != apperr.KindCorrupted || !strings.Contains(err.Error(), "broken.pdf") {
		t.Fatalf("expected corrupted error naming the file, got %v", err)
	}
}

func TestSplit(t *testing.T) {
	in := input(t, "book.pdf", 5)
	ranges, err := ParseRanges("1-2,4-", 5)
	if err != nil {
		t.Fatal(err)
	}
	parts, err := Split(context.Background(), in, ranges)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if got := strings.Join(pageTexts(t, parts[1]), ","); got != "Page 4,Page 5" {
		t.Fatalf("second part has %s", got)
	}
	if _, err := Split(context.Background(), in, []Range{{From: 4, To: 6}}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("out of range split should fail, got %v", err)
	}
}

func TestSplitEach(t *testing.T) {
	parts, err := SplitEach(context.Background(), input(t, "book.pdf", 3))
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range parts {
		if got := pageTexts(t, p); len(got) != 1 || got[0] != fmt.Sprintf("Page %d", i+1) {
			t.Fatalf("part %d has %v", i, got)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := SplitEach(ctx, input(t, "book.pdf", 3)); apperr.KindOf(err) != apperr.KindCanceled {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestExtractPages(t *testing.T) {
	data, err := ExtractPages(context.Background(), input(t, "book.pdf", 4), []int{4, 1, 4})
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(pageTexts(t, data), ","); got != "Page 4,Page 1,Page 4" {
		t.Fatalf("unexpected pages %s", got)
	}
	if _, err := ExtractPages(context.Background(), input(t, "book.pdf", 2), []int{3}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
