package filters

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"testing"

	"github.com/hhrutter/lzw"

	"github.com/wudi/privkit/ir/raw"
)

func zlibBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()
	return buf.Bytes()
}

func TestFlateDecode(t *testing.T) {
	dec := NewFlateDecoder(0)
	out, err := dec.Decode(context.Background(), zlibBytes(t, []byte("hello world")), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateEncodeRoundTrip(t *testing.T) {
	in := bytes.Repeat([]byte("q 1 0 0 1 0 0 cm Q\n"), 50)
	enc, err := FlateEncode(in, 9)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(enc) >= len(in) {
		t.Fatalf("expected compression, got %d >= %d", len(enc), len(in))
	}
	out, err := NewFlateDecoder(0).Decode(context.Background(), enc, nil)
	if err != nil || !bytes.Equal(out, in) {
		t.Fatalf("round trip mismatch: %v", err)
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	// PNG predictor row: filter byte 1 (Sub), then row bytes.
	comp := zlibBytes(t, []byte{1, 10, 12, 20, 2, 1, 1, 1})

	params := raw.Dict()
	params.Set("Predictor", raw.NumberInt(12))
	params.Set("Colors", raw.NumberInt(1))
	params.Set("BitsPerComponent", raw.NumberInt(8))
	params.Set("Columns", raw.NumberInt(3))

	out, err := NewFlateDecoder(0).Decode(context.Background(), comp, params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42, 11, 23, 43}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestFlateDecodeLimit(t *testing.T) {
	comp := zlibBytes(t, make([]byte, 4096))
	if _, err := NewFlateDecoder(100).Decode(context.Background(), comp, nil); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected limit error, got %v", err)
	}
}

func TestLZWDecode(t *testing.T) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, true)
	input := []byte("hello hello hello")
	if _, err := w.Write(input); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	out, err := NewLZWDecoder(0).Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunLengthDecode(t *testing.T) {
	// literal run of 3 bytes (len=2), then repeat 'A' 2 times (len=255 => count=2), then EOD 128
	data := []byte{2, 'h', 'i', '!', 255, 'A', 128}
	out, err := NewRunLengthDecoder().Decode(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hi!AA" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCII85Decode(t *testing.T) {
	out, err := NewASCII85Decoder().Decode(context.Background(), []byte("<~87cURD_*#4DfTZ)+T~>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "Hello, World!" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	out, err := NewASCIIHexDecoder().Decode(context.Background(), []byte("68656c6c 6f20776f726c64>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPipelineChain(t *testing.T) {
	comp := zlibBytes(t, []byte("BT /F1 12 Tf ET"))
	hexed := []byte{}
	for _, b := range comp {
		hexed = append(hexed, "0123456789abcdef"[b>>4], "0123456789abcdef"[b&0xF])
	}
	dict := raw.Dict()
	dict.Set("Filter", raw.NewArray(raw.NameLiteral("ASCIIHexDecode"), raw.NameLiteral("FlateDecode")))
	out, err := Standard(Limits{}).DecodeStream(context.Background(), raw.NewStream(dict, hexed))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out) != "BT /F1 12 Tf ET" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestUnsupportedFilters(t *testing.T) {
	_, err := Standard(Limits{}).Decode(context.Background(), []byte{0x00}, []string{"JBIG2Decode"}, nil)
	var ue UnsupportedError
	if err == nil || !errors.As(err, &ue) || ue.Filter != "JBIG2Decode" {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestTIFFPredictorRejected(t *testing.T) {
	params := raw.Dict()
	params.Set("Predictor", raw.NumberInt(2))
	if _, err := NewFlateDecoder(0).Decode(context.Background(), zlibBytes(t, []byte{1, 2}), params); err == nil {
		t.Fatalf("expected TIFF predictor error")
	}
}
