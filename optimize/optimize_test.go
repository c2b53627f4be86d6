package optimize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/wudi/privkit/apperr"
	"github.com/wudi/privkit/document"
	"github.com/wudi/privkit/internal/pdftest"
	"github.com/wudi/privkit/ir/raw"
	"github.com/wudi/privkit/observability"
	"github.com/wudi/privkit/writer"
)

func photo(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8((x ^ y) * 3), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func imageStream(data []byte, w, h int) *raw.StreamObj {
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("XObject"))
	d.Set("Subtype", raw.NameLiteral("Image"))
	d.Set("Width", raw.NumberInt(int64(w)))
	d.Set("Height", raw.NumberInt(int64(h)))
	d.Set("ColorSpace", raw.NameLiteral("DeviceRGB"))
	d.Set("BitsPerComponent", raw.NumberInt(8))
	d.Set("Filter", raw.NameLiteral("DCTDecode"))
	return raw.NewStream(d, data)
}

// fixture is a two page document where each page shows its own copy of
// the same photo, plus an orphaned stream and a hex encoded XMP stream.
func fixture(t *testing.T) *document.Document {
	doc := pdftest.New(t, pdftest.Pages(2), nil)
	jpg := photo(t, 400, 200)
	for i := 0; i < 2; i++ {
		p, err := doc.Page(i)
		if err != nil {
			t.Fatal(err)
		}
		xo := raw.Dict()
		xo.Set("Im0", doc.Add(imageStream(append([]byte(nil), jpg...), 400, 200)))
		p.Resources.Set("XObject", xo)
		if err := doc.AppendContent(i, []byte(fmt.Sprintf("q 200 0 0 100 72 %d cm /Im0 Do Q", 500+i))); err != nil {
			t.Fatal(err)
		}
	}
	doc.Add(raw.NewStream(nil, bytes.Repeat([]byte("orphan "), 2000)))

	xmp := raw.Dict()
	xmp.Set("Type", raw.NameLiteral("Metadata"))
	xmp.Set("Subtype", raw.NameLiteral("XML"))
	xmp.Set("Filter", raw.NameLiteral("ASCIIHexDecode"))
	cat, _ := doc.Catalog()
	cat.Set("Metadata", doc.Add(raw.NewStream(xmp, []byte("3C782F3E>"))))
	return doc
}

func TestOptimize(t *testing.T) {
	doc := fixture(t)
	st, err := Optimize(context.Background(), doc, Config{
		CompressStreams:    true,
		RemoveUnused:       true,
		DeduplicateStreams: true,
		ImageQuality:       60,
		MaxImageDimension:  100,
	})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if st.ObjectsRemoved != 1 {
		t.Fatalf("expected the orphan to be removed, got %d", st.ObjectsRemoved)
	}
	if st.StreamsRecoded != 1 {
		t.Fatalf("expected the hex stream to be recoded, got %d", st.StreamsRecoded)
	}
	if st.ImagesRecompressed != 2 || st.StreamsShared != 1 {
		t.Fatalf("unexpected image stats %+v", st)
	}

	var refs []raw.ObjectRef
	for i := 0; i < 2; i++ {
		p, _ := doc.Page(i)
		xo, _ := p.Resources.Get("XObject")
		refs = append(refs, xo.(*raw.DictObj).KV["Im0"].(raw.RefObj).R)
	}
	if refs[0] != refs[1] {
		t.Fatalf("pages should share one image, got %v", refs)
	}
	img := doc.Raw().Objects[refs[0]].(*raw.StreamObj)
	w, _ := img.Dict.Int("Width")
	h, _ := img.Dict.Int("Height")
	if w != 100 || h != 50 {
		t.Fatalf("expected 100x50, got %dx%d", w, h)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(img.Data))
	if err != nil {
		t.Fatalf("re-encoded image does not decode: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Fatalf("jpeg is %v", b)
	}

	cat, _ := doc.Catalog()
	meta := doc.Resolve(cat.KV["Metadata"]).(*raw.StreamObj)
	if string(meta.Data) != "<x/>" {
		t.Fatalf("hex stream decoded to %q", meta.Data)
	}
	if _, ok := meta.Dict.Get("Filter"); ok {
		t.Fatal("recoded stream still names a filter")
	}
}

func TestOptimizeLeavesImagesWithoutQuality(t *testing.T) {
	doc := fixture(t)
	st, err := Optimize(context.Background(), doc, Config{DeduplicateStreams: true})
	if err != nil {
		t.Fatal(err)
	}
	if st.ImagesRecompressed != 0 || st.StreamsShared != 1 || st.ObjectsRemoved != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestCompress(t *testing.T) {
	data, err := fixture(t).Bytes(context.Background(), writer.Config{Deterministic: true})
	if err != nil {
		t.Fatal(err)
	}
	var tracked map[string]interface{}
	cfg := DefaultConfig()
	cfg.Deterministic = true
	cfg.Tracker = observability.TrackerFunc(func(_ context.Context, event string, props map[string]interface{}) error {
		if event == observability.EventPDFCompressed {
			tracked = props
		}
		return nil
	})

	res, err := Compress(context.Background(), Input{Name: "scan.pdf", Data: data}, cfg)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if res.Unchanged || res.CompressedSize >= res.OriginalSize || int64(len(res.Data)) != res.CompressedSize {
		t.Fatalf("expected a smaller file, got %d -> %d", res.OriginalSize, res.CompressedSize)
	}
	if res.Savings() <= 0 {
		t.Fatalf("savings %.2f", res.Savings())
	}
	if tracked["unchanged"] != false {
		t.Fatalf("unexpected analytics %v", tracked)
	}
	doc, err := document.Open(context.Background(), res.Data, document.Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("expected 2 pages, got %d", doc.PageCount())
	}

	cfg.ImageQuality = 0
	again, err := Compress(context.Background(), Input{Name: "scan.pdf", Data: res.Data}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Unchanged || !bytes.Equal(again.Data, res.Data) {
		t.Fatalf("second pass should return the input unchanged")
	}
}

func TestCompressValidation(t *testing.T) {
	data := pdftest.Build(t, pdftest.Pages(1), nil)
	cfg := DefaultConfig()
	cfg.ImageQuality = 101
	if _, err := Compress(context.Background(), Input{Name: "a.pdf", Data: data}, cfg); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	cfg = DefaultConfig()
	cfg.MaxFileSize = 10
	if _, err := Compress(context.Background(), Input{Name: "a.pdf", Data: data}, cfg); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected size error, got %v", err)
	}
	if _, err := Compress(context.Background(), Input{Name: "a.txt", Data: []byte("hello")}, cfg); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected type error, got %v", err)
	}
}
