package writer

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/privkit/filters"
	"github.com/wudi/privkit/ir/raw"
)

var ErrNoRoot = errors.New("document has no /Root")

// minCompressSize is the smallest stream worth flate-encoding.
const minCompressSize = 64

type impl struct{ interceptors []Interceptor }

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
	writeObject(&buf, obj)
	buf.WriteString("\nendobj\n")
	return buf.Bytes(), nil
}

func (w *impl) Write(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) error {
	root, ok := doc.Trailer.Get("Root")
	if !ok {
		return ErrNoRoot
	}
	version := string(cfg.Version)
	if version == "" {
		version = doc.Version
	}
	if version == "" {
		version = string(PDF17)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-" + version + "\n%\xE2\xE3\xCF\xD3\n")

	refs := doc.SortedRefs()
	offsets := make(map[int]int64, len(refs))
	gens := make(map[int]int, len(refs))
	hash, _ := blake2b.New256(nil)
	for i, ref := range refs {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if _, dup := offsets[ref.Num]; dup {
			continue
		}
		obj := doc.Objects[ref]
		if stm, ok := obj.(*raw.StreamObj); ok {
			prepared, err := prepareStream(stm, cfg)
			if err != nil {
				return fmt.Errorf("object %s: %w", ref, err)
			}
			obj = prepared
		}
		for _, ic := range w.interceptors {
			if err := ic.BeforeWrite(ctx, ref, obj); err != nil {
				return err
			}
		}
		serialized, err := w.SerializeObject(ref, obj)
		if err != nil {
			return err
		}
		offsets[ref.Num] = int64(buf.Len())
		gens[ref.Num] = ref.Gen
		buf.Write(serialized)
		hash.Write(serialized)
		for _, ic := range w.interceptors {
			if err := ic.AfterWrite(ctx, ref, int64(len(serialized))); err != nil {
				return err
			}
		}
	}

	maxNum := 0
	for num := range offsets {
		if num > maxNum {
			maxNum = num
		}
	}
	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", maxNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= maxNum; i++ {
		if off, ok := offsets[i]; ok {
			fmt.Fprintf(&buf, "%010d %05d n \n", off, gens[i])
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	trailer := raw.Dict()
	trailer.Set("Size", raw.NumberInt(int64(maxNum+1)))
	trailer.Set("Root", root)
	if info, ok := doc.Trailer.Get("Info"); ok {
		if resolvable(doc, info) {
			trailer.Set("Info", info)
		}
	}
	if !cfg.Deterministic {
		var stamp [8]byte
		binary.BigEndian.PutUint64(stamp[:], uint64(time.Now().UnixNano()))
		hash.Write(stamp[:])
	}
	sum := hash.Sum(nil)[:16]
	first := sum
	if ids, ok := doc.Trailer.Get("ID"); ok {
		if arr, ok := ids.(*raw.ArrayObj); ok && arr.Len() == 2 {
			if s, ok := arr.Items[0].(raw.StringObj); ok && len(s.Bytes) > 0 {
				first = s.Bytes
			}
		}
	}
	trailer.Set("ID", raw.NewArray(raw.HexStr(first), raw.HexStr(sum)))

	buf.WriteString("trailer\n")
	writeObject(&buf, trailer)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	_, err := out.Write(buf.Bytes())
	return err
}

func resolvable(doc *raw.Document, o raw.Object) bool {
	ref, ok := o.(raw.RefObj)
	if !ok {
		return true
	}
	_, ok = doc.Objects[ref.R]
	return ok
}

// prepareStream returns a copy of stm with /Length matching the data and,
// when requested, flate compression applied.
func prepareStream(stm *raw.StreamObj, cfg Config) (*raw.StreamObj, error) {
	dict := raw.Dict()
	if stm.Dict != nil {
		for k, v := range stm.Dict.KV {
			dict.KV[k] = v
		}
	}
	data := stm.Data
	if cfg.Compress && len(data) >= minCompressSize {
		if _, filtered := dict.Get("Filter"); !filtered {
			enc, err := filters.FlateEncode(data, cfg.Level)
			if err != nil {
				return nil, err
			}
			if len(enc) < len(data) {
				data = enc
				dict.Set("Filter", raw.NameLiteral("FlateDecode"))
				dict.Delete("DecodeParms")
			}
		}
	}
	dict.Set("Length", raw.NumberInt(int64(len(data))))
	return &raw.StreamObj{Dict: dict, Data: data}, nil
}

func writeObject(buf *bytes.Buffer, o raw.Object) {
	switch v := o.(type) {
	case raw.NameObj:
		writeName(buf, v.Val)
	case raw.NumberObj:
		if v.IsInt {
			buf.WriteString(strconv.FormatInt(v.I, 10))
		} else {
			buf.WriteString(FormatReal(v.F))
		}
	case raw.BoolObj:
		buf.WriteString(strconv.FormatBool(v.V))
	case raw.StringObj:
		writeString(buf, v)
	case *raw.ArrayObj:
		buf.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeObject(buf, it)
		}
		buf.WriteByte(']')
	case *raw.DictObj:
		buf.WriteString("<<")
		for _, k := range v.Keys() {
			writeName(buf, k)
			buf.WriteByte(' ')
			writeObject(buf, v.KV[k])
		}
		buf.WriteString(">>")
	case *raw.StreamObj:
		dict := v.Dict
		if dict == nil {
			dict = raw.Dict()
		}
		writeObject(buf, dict)
		buf.WriteString("\nstream\n")
		buf.Write(v.Data)
		buf.WriteString("\nendstream")
	case raw.RefObj:
		fmt.Fprintf(buf, "%d %d R", v.R.Num, v.R.Gen)
	default:
		buf.WriteString("null")
	}
}

// FormatReal renders f without exponent, rounded to 6 decimals.
func FormatReal(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	f = math.Round(f*1e6) / 1e6
	if f == 0 {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func writeName(buf *bytes.Buffer, name string) {
	buf.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7E || c == '#' || isDelimiter(c) {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}

func writeString(buf *bytes.Buffer, s raw.StringObj) {
	if s.Hex {
		buf.WriteByte('<')
		for _, c := range s.Bytes {
			fmt.Fprintf(buf, "%02X", c)
		}
		buf.WriteByte('>')
		return
	}
	buf.WriteByte('(')
	for _, c := range s.Bytes {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString("\\n")
		case '\r':
			buf.WriteString("\\r")
		case '\t':
			buf.WriteString("\\t")
		default:
			if c < 0x20 || c == 0x7F {
				fmt.Fprintf(buf, "\\%03o", c)
			} else {
				buf.WriteByte(c)
			}
		}
	}
	buf.WriteByte(')')
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
