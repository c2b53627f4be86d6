package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/privkit/filters"
	"github.com/wudi/privkit/ir/raw"
	"github.com/wudi/privkit/recovery"
	"github.com/wudi/privkit/scanner"
)

var (
	ErrNoStartXRef = errors.New("startxref not found")
	ErrNoRoot      = errors.New("trailer has no /Root")
)

type EntryType int

const (
	EntryFree EntryType = iota
	EntryInUse
	EntryCompressed
)

// Entry locates one object. In-use entries carry a byte offset; compressed
// entries name the object stream and the index inside it.
type Entry struct {
	Type   EntryType
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Table is the merged view of every xref section reachable from startxref.
type Table struct {
	Entries  map[int]Entry
	Trailer  *raw.DictObj
	Sections int
	Repaired bool
}

func newTable() *Table {
	return &Table{Entries: make(map[int]Entry), Trailer: raw.Dict()}
}

func (t *Table) Lookup(objNum int) (Entry, bool) {
	e, ok := t.Entries[objNum]
	return e, ok
}

// Objects returns the numbers of all in-use and compressed objects.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.Entries))
	for k, e := range t.Entries {
		if e.Type != EntryFree {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

// add records e unless a newer section already defined objNum.
func (t *Table) add(objNum int, e Entry) {
	if _, exists := t.Entries[objNum]; !exists {
		t.Entries[objNum] = e
	}
}

func (t *Table) mergeTrailer(tr *raw.DictObj) {
	for _, k := range tr.Keys() {
		switch k {
		case "Prev", "XRefStm", "Length", "Filter", "DecodeParms", "W", "Index", "Type":
			continue
		}
		if _, exists := t.Trailer.Get(k); !exists {
			t.Trailer.Set(k, tr.KV[k])
		}
	}
}

type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
	Limits       filters.Limits
}

// Resolver locates and parses xref information in a PDF.
type Resolver struct {
	cfg      ResolverConfig
	pipeline *filters.Pipeline
}

func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 50
	}
	return &Resolver{cfg: cfg, pipeline: filters.Standard(cfg.Limits)}
}

// Resolve walks the xref chain from the last startxref. When the chain is
// broken and the recovery strategy tolerates it, the table is rebuilt by
// scanning the whole file.
func (r *Resolver) Resolve(ctx context.Context, data []byte) (*Table, error) {
	t, err := r.resolveChain(ctx, data)
	if err == nil {
		return t, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !recovery.Tolerates(ctx, r.cfg.Recovery, err, recovery.Location{Component: "xref"}) {
		return nil, err
	}
	return Repair(ctx, data)
}

func (r *Resolver) resolveChain(ctx context.Context, data []byte) (*Table, error) {
	offset, err := FindStartXRef(data)
	if err != nil {
		return nil, err
	}
	t := newTable()
	visited := make(map[int64]bool)
	for offset >= 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if visited[offset] {
			break
		}
		if len(visited) >= r.cfg.MaxXRefDepth {
			return nil, fmt.Errorf("xref chain longer than %d sections", r.cfg.MaxXRefDepth)
		}
		visited[offset] = true
		if offset >= int64(len(data)) {
			return nil, fmt.Errorf("xref offset %d out of range", offset)
		}

		trailer, err := r.readSection(ctx, t, data, offset)
		if err != nil {
			return nil, err
		}
		t.Sections++
		if stm, ok := trailer.Int("XRefStm"); ok && !visited[stm] {
			visited[stm] = true
			if _, err := r.readStreamSection(ctx, t, data, stm); err != nil {
				return nil, fmt.Errorf("hybrid xref stream: %w", err)
			}
		}
		t.mergeTrailer(trailer)
		prev, ok := trailer.Int("Prev")
		if !ok {
			break
		}
		offset = prev
	}
	if _, ok := t.Trailer.Get("Root"); !ok {
		return nil, ErrNoRoot
	}
	return t, nil
}

func (r *Resolver) readSection(ctx context.Context, t *Table, data []byte, offset int64) (*raw.DictObj, error) {
	p := offset
	for p < int64(len(data)) && scanner.IsWhitespace(data[p]) {
		p++
	}
	if bytes.HasPrefix(data[p:], []byte("xref")) {
		return r.readClassic(t, data, p+4)
	}
	return r.readStreamSection(ctx, t, data, offset)
}

// readClassic parses subsections "start count" followed by count entries
// of "offset gen n|f", then the trailer dictionary.
func (r *Resolver) readClassic(t *Table, data []byte, offset int64) (*raw.DictObj, error) {
	s := scanner.New(data, scanner.Config{Recovery: r.cfg.Recovery})
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("xref table: %w", err)
		}
		if tok.IsKeyword("trailer") {
			break
		}
		countTok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("xref subsection: %w", err)
		}
		if tok.Type != scanner.TokenNumber || countTok.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("malformed xref subsection header at %d", tok.Pos)
		}
		start, count := int(tok.Int), int(countTok.Int)
		for i := 0; i < count; i++ {
			offTok, err1 := s.Next()
			genTok, err2 := s.Next()
			kind, err3 := s.Next()
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, fmt.Errorf("xref entry: %w", err)
			}
			if offTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber || kind.Type != scanner.TokenKeyword {
				return nil, fmt.Errorf("malformed xref entry at %d", offTok.Pos)
			}
			e := Entry{Type: EntryFree, Offset: offTok.Int, Gen: int(genTok.Int)}
			if kind.Str == "n" {
				e.Type = EntryInUse
			}
			t.add(start+i, e)
		}
	}
	obj, err := s.ReadObject()
	if err != nil {
		return nil, fmt.Errorf("trailer: %w", err)
	}
	trailer, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("trailer is not a dictionary")
	}
	return trailer, nil
}

// readStreamSection parses an xref stream object (/Type /XRef).
func (r *Resolver) readStreamSection(ctx context.Context, t *Table, data []byte, offset int64) (*raw.DictObj, error) {
	s := scanner.New(data, scanner.Config{Recovery: r.cfg.Recovery})
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	_, obj, err := s.ReadIndirect(nil)
	if err != nil {
		return nil, fmt.Errorf("xref stream: %w", err)
	}
	stm, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("no xref stream at offset %d", offset)
	}
	if typ, _ := stm.Dict.Name("Type"); typ != "XRef" {
		return nil, fmt.Errorf("object at %d is not an xref stream", offset)
	}
	decoded, err := r.pipeline.DecodeStream(ctx, stm)
	if err != nil {
		return nil, fmt.Errorf("xref stream: %w", err)
	}
	if err := parseStreamEntries(t, stm.Dict, decoded); err != nil {
		return nil, err
	}
	return stm.Dict, nil
}

func parseStreamEntries(t *Table, dict *raw.DictObj, decoded []byte) error {
	wObj, _ := dict.Get("W")
	wArr, ok := wObj.(*raw.ArrayObj)
	if !ok || wArr.Len() != 3 {
		return errors.New("xref stream: invalid /W array")
	}
	var w [3]int
	for i, it := range wArr.Items {
		n, ok := raw.Number(it)
		if !ok || n < 0 || n > 8 {
			return errors.New("xref stream: invalid /W entry")
		}
		w[i] = int(n)
	}
	stride := w[0] + w[1] + w[2]
	if stride == 0 {
		return errors.New("xref stream: zero row width")
	}

	var index []int
	if idxObj, ok := dict.Get("Index"); ok {
		if arr, ok := idxObj.(*raw.ArrayObj); ok {
			for _, it := range arr.Items {
				n, _ := raw.Number(it)
				index = append(index, int(n))
			}
		}
	}
	if len(index) == 0 {
		size, _ := dict.Int("Size")
		index = []int{0, int(size)}
	}
	if len(index)%2 != 0 {
		return errors.New("xref stream: odd /Index length")
	}

	row := 0
	for i := 0; i < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			off := row * stride
			if off+stride > len(decoded) {
				return nil
			}
			rec := decoded[off : off+stride]
			row++
			typ := int64(1)
			if w[0] > 0 {
				typ = readInt(rec[:w[0]])
			}
			f2 := readInt(rec[w[0] : w[0]+w[1]])
			f3 := readInt(rec[w[0]+w[1]:])
			switch typ {
			case 0:
				t.add(start+j, Entry{Type: EntryFree, Gen: int(f3)})
			case 1:
				t.add(start+j, Entry{Type: EntryInUse, Offset: f2, Gen: int(f3)})
			case 2:
				t.add(start+j, Entry{Type: EntryCompressed, Stream: int(f2), Index: int(f3)})
			}
		}
	}
	return nil
}

func readInt(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// FindStartXRef returns the offset recorded after the last startxref keyword.
func FindStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, ErrNoStartXRef
	}
	rest := bytes.TrimLeft(data[idx+len("startxref"):], " \t\r\n\f\x00")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, errors.New("startxref offset missing")
	}
	off, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse startxref: %w", err)
	}
	return off, nil
}
