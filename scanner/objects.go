package scanner

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/privkit/ir/raw"
)

// MaxNesting bounds array and dictionary nesting in ReadObject.
const MaxNesting = 256

var ErrNestingTooDeep = errors.New("object nesting too deep")

// ReadObject reads one complete direct object, including nested arrays and
// dictionaries, starting at the current position.
func (s *Scanner) ReadObject() (raw.Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return s.objectFrom(tok, 0)
}

func (s *Scanner) objectFrom(tok Token, depth int) (raw.Object, error) {
	if depth > MaxNesting {
		return nil, ErrNestingTooDeep
	}
	switch tok.Type {
	case TokenName:
		return raw.NameLiteral(tok.Str), nil
	case TokenNumber:
		if tok.IsInt {
			return raw.NumberInt(tok.Int), nil
		}
		return raw.NumberFloat(tok.Float), nil
	case TokenString:
		return raw.StringObj{Bytes: append([]byte(nil), tok.Bytes...), Hex: tok.Hex}, nil
	case TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenRef:
		return raw.Ref(int(tok.Int), tok.Gen), nil
	case TokenArray:
		arr := raw.NewArray()
		for {
			next, err := s.Next()
			if err != nil {
				return nil, fmt.Errorf("array at %d: %w", tok.Pos, unexpectedEOF(err))
			}
			if next.IsKeyword("]") {
				return arr, nil
			}
			item, err := s.objectFrom(next, depth+1)
			if err != nil {
				return nil, err
			}
			arr.Append(item)
		}
	case TokenDict:
		dict := raw.Dict()
		for {
			next, err := s.Next()
			if err != nil {
				return nil, fmt.Errorf("dictionary at %d: %w", tok.Pos, unexpectedEOF(err))
			}
			if next.IsKeyword(">>") {
				return dict, nil
			}
			if next.Type != TokenName {
				if err := s.recover(fmt.Errorf("dictionary key is not a name at %d", next.Pos), "dict"); err != nil {
					return nil, err
				}
				continue
			}
			valTok, err := s.Next()
			if err != nil {
				return nil, fmt.Errorf("dictionary at %d: %w", tok.Pos, unexpectedEOF(err))
			}
			if valTok.IsKeyword(">>") {
				// key without value
				return dict, nil
			}
			val, err := s.objectFrom(valTok, depth+1)
			if err != nil {
				return nil, err
			}
			if _, isNull := val.(raw.NullObj); !isNull {
				dict.Set(next.Str, val)
			}
		}
	case TokenKeyword:
		return nil, fmt.Errorf("unexpected keyword %q at %d", tok.Str, tok.Pos)
	case TokenStream:
		return nil, fmt.Errorf("unexpected stream at %d", tok.Pos)
	}
	return nil, fmt.Errorf("unexpected token at %d", tok.Pos)
}

// LengthFunc resolves a stream /Length value, which may be an indirect
// reference. It returns false when the length is unknown.
type LengthFunc func(raw.Object) (int64, bool)

// ReadIndirect reads "num gen obj ... endobj" at the current position. A
// dictionary followed by a stream keyword yields a *raw.StreamObj.
func (s *Scanner) ReadIndirect(length LengthFunc) (raw.ObjectRef, raw.Object, error) {
	var ref raw.ObjectRef
	numTok, err := s.Next()
	if err != nil {
		return ref, nil, unexpectedEOF(err)
	}
	genTok, err := s.Next()
	if err != nil {
		return ref, nil, unexpectedEOF(err)
	}
	objTok, err := s.Next()
	if err != nil {
		return ref, nil, unexpectedEOF(err)
	}
	if numTok.Type != TokenNumber || !numTok.IsInt || genTok.Type != TokenNumber || !genTok.IsInt || !objTok.IsKeyword("obj") {
		return ref, nil, fmt.Errorf("no object header at %d", numTok.Pos)
	}
	ref = raw.ObjectRef{Num: int(numTok.Int), Gen: int(genTok.Int)}
	obj, err := s.ReadObject()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ref, nil, fmt.Errorf("object %s: %w", ref, io.ErrUnexpectedEOF)
		}
		// "n g obj endobj" denotes a null object
		if s.Seek(objTok.Pos+3) == nil {
			if tok, nextErr := s.Next(); nextErr == nil && tok.IsKeyword("endobj") {
				return ref, raw.NullObj{}, nil
			}
		}
		return ref, nil, fmt.Errorf("object %s: %w", ref, err)
	}

	dict, isDict := obj.(*raw.DictObj)
	if !isDict {
		s.skipEndobj()
		return ref, obj, nil
	}
	mark := s.pos
	declared := int64(-1)
	if length != nil {
		if l, ok := length(dict.KV["Length"]); ok {
			declared = l
		}
	} else if l, ok := dict.Int("Length"); ok {
		declared = l
	}
	s.skipWSAndComments()
	if !s.hasKeyword("stream") {
		s.pos = mark
		s.skipEndobj()
		return ref, dict, nil
	}
	s.SetNextStreamLength(declared)
	tok, err := s.Next()
	if err != nil {
		return ref, nil, fmt.Errorf("object %s stream: %w", ref, err)
	}
	s.skipEndobj()
	return ref, &raw.StreamObj{Dict: dict, Data: tok.Bytes}, nil
}

func (s *Scanner) hasKeyword(kw string) bool {
	end := s.pos + int64(len(kw))
	if end > int64(len(s.data)) || string(s.data[s.pos:end]) != kw {
		return false
	}
	return end == int64(len(s.data)) || isDelimiter(s.data[end])
}

func (s *Scanner) skipEndobj() {
	mark := s.pos
	s.skipWSAndComments()
	if s.hasKeyword("endobj") {
		s.pos += int64(len("endobj"))
		return
	}
	s.pos = mark
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
