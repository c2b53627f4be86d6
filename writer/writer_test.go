package writer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wudi/privkit/filters"
	"github.com/wudi/privkit/ir/raw"
	"github.com/wudi/privkit/parser"
)

func sampleDoc(content []byte) *raw.Document {
	doc := raw.NewDocument("1.7")
	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalog.Set("Pages", raw.Ref(2, 0))
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", raw.NewArray(raw.Ref(3, 0)))
	pages.Set("Count", raw.NumberInt(1))
	page := raw.Dict()
	page.Set("Type", raw.NameLiteral("Page"))
	page.Set("Parent", raw.Ref(2, 0))
	page.Set("MediaBox", raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberFloat(612.5), raw.NumberInt(792)))
	page.Set("Contents", raw.Ref(4, 0))
	info := raw.Dict()
	info.Set("Title", raw.Str([]byte("Quarterly (draft) \\ report")))

	doc.Objects[raw.ObjectRef{Num: 1}] = catalog
	doc.Objects[raw.ObjectRef{Num: 2}] = pages
	doc.Objects[raw.ObjectRef{Num: 3}] = page
	doc.Objects[raw.ObjectRef{Num: 4}] = raw.NewStream(nil, content)
	doc.Objects[raw.ObjectRef{Num: 5}] = info
	doc.Trailer.Set("Root", raw.Ref(1, 0))
	doc.Trailer.Set("Info", raw.Ref(5, 0))
	return doc
}

func writeAndParse(t *testing.T, doc *raw.Document, cfg Config) ([]byte, *raw.Document) {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(context.Background(), doc, &buf, cfg); err != nil {
		t.Fatalf("write: %v", err)
	}
	parsed, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("reparse: %v\n%s", err, buf.String())
	}
	return buf.Bytes(), parsed
}

func TestWriteRoundTrip(t *testing.T) {
	content := []byte("0 0 1 rg 10 10 100 50 re f")
	data, parsed := writeAndParse(t, sampleDoc(content), Config{Deterministic: true})

	if !bytes.HasPrefix(data, []byte("%PDF-1.7\n")) {
		t.Fatalf("missing header: %q", data[:16])
	}
	if len(parsed.Objects) != 5 {
		t.Fatalf("expected 5 objects, got %d", len(parsed.Objects))
	}
	stm, ok := parsed.Objects[raw.ObjectRef{Num: 4}].(*raw.StreamObj)
	if !ok || !bytes.Equal(stm.Data, content) {
		t.Fatalf("content stream mismatch: %#v", parsed.Objects[raw.ObjectRef{Num: 4}])
	}
	if l, _ := stm.Dict.Int("Length"); l != int64(len(content)) {
		t.Fatalf("length not recomputed: %d", l)
	}
	info, _ := parsed.ResolveDict(parsed.Trailer.KV["Info"])
	title, _ := info.Get("Title")
	if s, ok := title.(raw.StringObj); !ok || string(s.Bytes) != "Quarterly (draft) \\ report" {
		t.Fatalf("string escaping broken: %#v", title)
	}
	page, _ := parsed.ResolveDict(raw.Ref(3, 0))
	box, _ := page.Get("MediaBox")
	if w, _ := raw.Number(box.(*raw.ArrayObj).Items[2]); w != 612.5 {
		t.Fatalf("real number mismatch: %v", w)
	}
	ids, ok := parsed.Trailer.Get("ID")
	if !ok || ids.(*raw.ArrayObj).Len() != 2 {
		t.Fatalf("missing /ID: %v", ids)
	}
}

func TestWriteCompressesStreams(t *testing.T) {
	content := []byte(strings.Repeat("0 0 0 rg 72 72 144 36 re f\n", 40))
	_, parsed := writeAndParse(t, sampleDoc(content), Config{Compress: true, Deterministic: true})
	stm := parsed.Objects[raw.ObjectRef{Num: 4}].(*raw.StreamObj)
	if !filters.HasFilter(stm.Dict, "FlateDecode") {
		t.Fatalf("stream not flate encoded: %v", stm.Dict.KV)
	}
	decoded, err := filters.Standard(filters.Limits{}).DecodeStream(context.Background(), stm)
	if err != nil || !bytes.Equal(decoded, content) {
		t.Fatalf("decoded stream mismatch: %v", err)
	}
}

func TestWriteDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	doc := sampleDoc([]byte("BT ET"))
	if err := Write(context.Background(), doc, &a, Config{Deterministic: true}); err != nil {
		t.Fatal(err)
	}
	if err := Write(context.Background(), doc, &b, Config{Deterministic: true}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("deterministic writes differ")
	}
}

func TestWriteRequiresRoot(t *testing.T) {
	doc := raw.NewDocument("")
	if err := Write(context.Background(), doc, &bytes.Buffer{}, Config{}); !errors.Is(err, ErrNoRoot) {
		t.Fatalf("expected ErrNoRoot, got %v", err)
	}
}

func TestSerializeEscapesNames(t *testing.T) {
	w := (&WriterBuilder{}).Build()
	out, err := w.SerializeObject(raw.ObjectRef{Num: 7}, raw.NameLiteral("A B#(x)"))
	if err != nil {
		t.Fatal(err)
	}
	if got := string(out); got != "7 0 obj\n/A#20B#23#28x#29\nendobj\n" {
		t.Fatalf("unexpected serialization %q", got)
	}
}

func TestFormatReal(t *testing.T) {
	cases := map[float64]string{
		0:           "0",
		-0.0000001:  "0",
		12.5:        "12.5",
		1.0 / 3.0:   "0.333333",
		1e7:         "10000000",
		-72.1234567: "-72.123457",
	}
	for in, want := range cases {
		if got := FormatReal(in); got != want {
			t.Fatalf("FormatReal(%v) = %q, want %q", in, got, want)
		}
	}
}

type countingInterceptor struct {
	before, after int
	bytes         int64
}

func (c *countingInterceptor) BeforeWrite(context.Context, raw.ObjectRef, raw.Object) error {
	c.before++
	return nil
}

func (c *countingInterceptor) AfterWrite(_ context.Context, _ raw.ObjectRef, n int64) error {
	c.after++
	c.bytes += n
	return nil
}

func TestInterceptorSeesEveryObject(t *testing.T) {
	ic := &countingInterceptor{}
	w := (&WriterBuilder{}).WithInterceptor(ic).Build()
	if err := w.Write(context.Background(), sampleDoc([]byte("BT ET")), &bytes.Buffer{}, Config{}); err != nil {
		t.Fatal(err)
	}
	if ic.before != 5 || ic.after != 5 || ic.bytes == 0 {
		t.Fatalf("unexpected interceptor counts %+v", ic)
	}
}
