package xref

import (
	"context"
	"errors"
	"io"

	"github.com/wudi/privkit/ir/raw"
	"github.com/wudi/privkit/scanner"
)

var ErrRepairFailed = errors.New("repair failed: no objects found")

// Repair scans the entire file to reconstruct the xref table.
// It looks for "<num> <gen> obj" patterns and "trailer" dictionaries. Later
// definitions of an object replace earlier ones, as incremental updates do.
func Repair(ctx context.Context, data []byte) (*Table, error) {
	s := scanner.New(data, scanner.Config{})
	t := newTable()
	t.Repaired = true
	var lastTrailer *raw.DictObj
	var catalog *raw.RefObj
	var prev1, prev2 scanner.Token

	for i := 0; ; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			continue
		}
		switch {
		case tok.IsKeyword("obj") && isInt(prev1) && isInt(prev2):
			num := int(prev2.Int)
			t.Entries[num] = Entry{Type: EntryInUse, Offset: prev2.Pos, Gen: int(prev1.Int)}
			mark := s.Position()
			if obj, err := s.ReadObject(); err == nil {
				if d, ok := obj.(*raw.DictObj); ok {
					switch typ, _ := d.Name("Type"); typ {
					case "Catalog":
						ref := raw.Ref(num, int(prev1.Int))
						catalog = &ref
					case "XRef":
						if lastTrailer == nil {
							lastTrailer = d
						}
					}
				}
			} else {
				_ = s.Seek(mark)
			}
		case tok.IsKeyword("trailer"):
			if obj, err := s.ReadObject(); err == nil {
				if d, ok := obj.(*raw.DictObj); ok {
					lastTrailer = d
				}
			}
		}
		prev2, prev1 = prev1, tok
	}

	if len(t.Entries) == 0 {
		return nil, ErrRepairFailed
	}
	if lastTrailer != nil {
		t.mergeTrailer(lastTrailer)
	}
	if _, ok := t.Trailer.Get("Root"); !ok && catalog != nil {
		t.Trailer.Set("Root", *catalog)
	}
	if _, ok := t.Trailer.Get("Root"); !ok {
		return nil, ErrNoRoot
	}
	max := 0
	for n := range t.Entries {
		if n > max {
			max = n
		}
	}
	t.Trailer.Set("Size", raw.NumberInt(int64(max+1)))
	t.Sections = 1
	return t, nil
}

func isInt(tok scanner.Token) bool {
	return tok.Type == scanner.TokenNumber && tok.IsInt && tok.Int >= 0
}
