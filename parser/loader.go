package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/privkit/filters"
	"github.com/wudi/privkit/ir/raw"
	"github.com/wudi/privkit/recovery"
	"github.com/wudi/privkit/scanner"
	"github.com/wudi/privkit/security"
	"github.com/wudi/privkit/xref"
)

// ObjectLoader reads individual objects located by an xref table.
type ObjectLoader interface {
	Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)
}

type ObjectLoaderBuilder struct {
	data      []byte
	xrefTable *xref.Table
	limits    security.Limits
	recovery  recovery.Strategy
}

func NewObjectLoaderBuilder(data []byte) *ObjectLoaderBuilder {
	return &ObjectLoaderBuilder{data: data}
}

func (b *ObjectLoaderBuilder) WithXRef(table *xref.Table) *ObjectLoaderBuilder {
	b.xrefTable = table
	return b
}

func (b *ObjectLoaderBuilder) WithLimits(l security.Limits) *ObjectLoaderBuilder {
	b.limits = l
	return b
}

func (b *ObjectLoaderBuilder) WithRecovery(r recovery.Strategy) *ObjectLoaderBuilder {
	b.recovery = r
	return b
}

func (b *ObjectLoaderBuilder) Build() (*Loader, error) {
	if b.data == nil || b.xrefTable == nil {
		return nil, errors.New("data and xref table required")
	}
	limits := b.limits.WithDefaults()
	return &Loader{
		data:      b.data,
		xrefTable: b.xrefTable,
		limits:    limits,
		recovery:  b.recovery,
		pipeline:  filters.Standard(filters.Limits{MaxDecompressedSize: limits.MaxDecompressedSize}),
		objstm:    make(map[int]map[int]raw.Object),
		loading:   make(map[int]bool),
	}, nil
}

// Loader loads objects from an in-memory file. It is not safe for
// concurrent use.
type Loader struct {
	data      []byte
	xrefTable *xref.Table
	limits    security.Limits
	recovery  recovery.Strategy
	pipeline  *filters.Pipeline
	objstm    map[int]map[int]raw.Object
	loading   map[int]bool
}

func (l *Loader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := l.xrefTable.Lookup(ref.Num)
	if !ok || e.Type == xref.EntryFree {
		return raw.NullObj{}, nil
	}
	if l.loading[ref.Num] {
		return nil, fmt.Errorf("object %s: circular load", ref)
	}
	l.loading[ref.Num] = true
	defer delete(l.loading, ref.Num)

	if e.Type == xref.EntryCompressed {
		return l.loadCompressed(ctx, ref.Num, e)
	}
	return l.loadAt(ctx, ref, e.Offset)
}

func (l *Loader) newScanner(ctx context.Context) *scanner.Scanner {
	return scanner.New(l.data, scanner.Config{
		MaxStringLength: l.limits.MaxStringLength,
		MaxStreamLength: l.limits.MaxStreamLength,
		Recovery:        l.recovery,
	}).WithContext(ctx)
}

func (l *Loader) loadAt(ctx context.Context, ref raw.ObjectRef, offset int64) (raw.Object, error) {
	s := l.newScanner(ctx)
	if err := s.Seek(offset); err != nil {
		return nil, fmt.Errorf("object %s: offset %d: %w", ref, offset, err)
	}
	got, obj, err := s.ReadIndirect(func(o raw.Object) (int64, bool) { return l.streamLength(ctx, o) })
	if err != nil {
		return nil, err
	}
	if got.Num != ref.Num {
		return nil, fmt.Errorf("xref points object %d at offset %d, found %d", ref.Num, offset, got.Num)
	}
	return obj, nil
}

// streamLength resolves a /Length value. Indirect lengths are read from
// their own object without going through the cache.
func (l *Loader) streamLength(ctx context.Context, o raw.Object) (int64, bool) {
	switch v := o.(type) {
	case raw.NumberObj:
		return v.Int(), v.Int() >= 0
	case raw.RefObj:
		e, ok := l.xrefTable.Lookup(v.R.Num)
		if !ok || e.Type != xref.EntryInUse || l.loading[v.R.Num] {
			return 0, false
		}
		obj, err := l.Load(ctx, v.R)
		if err != nil {
			return 0, false
		}
		if n, ok := obj.(raw.NumberObj); ok && n.Int() >= 0 {
			return n.Int(), true
		}
	}
	return 0, false
}

func (l *Loader) loadCompressed(ctx context.Context, num int, e xref.Entry) (raw.Object, error) {
	objs, err := l.objectStream(ctx, e.Stream)
	if err != nil {
		return nil, fmt.Errorf("object %d in stream %d: %w", num, e.Stream, err)
	}
	obj, ok := objs[num]
	if !ok {
		return raw.NullObj{}, nil
	}
	return obj, nil
}

// objectStream unpacks every object held by object stream num.
func (l *Loader) objectStream(ctx context.Context, num int) (map[int]raw.Object, error) {
	if objs, ok := l.objstm[num]; ok {
		return objs, nil
	}
	e, ok := l.xrefTable.Lookup(num)
	if !ok || e.Type != xref.EntryInUse {
		return nil, fmt.Errorf("object stream %d not found", num)
	}
	obj, err := l.loadAt(ctx, raw.ObjectRef{Num: num, Gen: e.Gen}, e.Offset)
	if err != nil {
		return nil, err
	}
	stm, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("object %d is not a stream", num)
	}
	objs, err := l.unpack(ctx, stm)
	if err != nil {
		return nil, err
	}
	l.objstm[num] = objs
	return objs, nil
}

// unpack parses an /ObjStm: N pairs of "objnum offset" followed by the
// objects themselves, offsets relative to /First.
func (l *Loader) unpack(ctx context.Context, stm *raw.StreamObj) (map[int]raw.Object, error) {
	if typ, _ := stm.Dict.Name("Type"); typ != "ObjStm" {
		return nil, errors.New("not an object stream")
	}
	n, _ := stm.Dict.Int("N")
	first, _ := stm.Dict.Int("First")
	data, err := l.pipeline.DecodeStream(ctx, stm)
	if err != nil {
		return nil, err
	}
	if first < 0 || first > int64(len(data)) {
		return nil, fmt.Errorf("object stream /First %d out of range", first)
	}
	header := scanner.New(data[:first], scanner.Config{})
	type slot struct {
		num int
		off int64
	}
	slots := make([]slot, 0, n)
	for i := int64(0); i < n; i++ {
		numTok, err1 := header.Next()
		offTok, err2 := header.Next()
		if err1 != nil || err2 != nil {
			break
		}
		slots = append(slots, slot{num: int(numTok.Int), off: offTok.Int})
	}
	body := scanner.New(data, scanner.Config{MaxStringLength: l.limits.MaxStringLength})
	out := make(map[int]raw.Object, len(slots))
	for _, sl := range slots {
		if err := body.Seek(first + sl.off); err != nil {
			continue
		}
		obj, err := body.ReadObject()
		if err != nil {
			if recovery.Tolerates(ctx, l.recovery, err, recovery.Location{ObjectNum: sl.num, Component: "objstm"}) {
				continue
			}
			return nil, fmt.Errorf("object %d: %w", sl.num, err)
		}
		out[sl.num] = obj
	}
	return out, nil
}
