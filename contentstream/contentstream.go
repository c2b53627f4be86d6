// Package contentstream parses page content streams into operations and
// traces where each painting operation lands in user space.
package contentstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/privkit/coords"
	"github.com/wudi/privkit/ir/raw"
	"github.com/wudi/privkit/scanner"
)

var ErrDanglingOperands = errors.New("operands without an operator")

// maxOperands bounds the operand stack of a single operator.
const maxOperands = 1024

// Operation is one operator with the operands that precede it. Inline
// images are reported as a single "BI" operation without operands.
type Operation struct {
	Operator string
	Operands []raw.Object
}

// Parse splits a decoded content stream into operations.
func Parse(ctx context.Context, data []byte) ([]Operation, error) {
	s := scanner.New(data, scanner.Config{}).WithContext(ctx)
	var ops []Operation
	var operands []raw.Object
	for i := 0; ; i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		mark := s.Position()
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("content at %d: %w", mark, err)
		}
		if tok.Type != scanner.TokenKeyword {
			if err := s.Seek(mark); err != nil {
				return nil, err
			}
			obj, err := s.ReadObject()
			if err != nil {
				return nil, fmt.Errorf("operand at %d: %w", mark, err)
			}
			if len(operands) == maxOperands {
				return nil, fmt.Errorf("operand stack overflow at %d", mark)
			}
			operands = append(operands, obj)
			continue
		}
		switch tok.Str {
		case "BI":
			operands = operands[:0]
			continue
		case "ID":
			end, ok := inlineImageEnd(data, s.Position())
			if !ok {
				return nil, fmt.Errorf("inline image at %d: missing EI", mark)
			}
			if err := s.Seek(end); err != nil {
				return nil, err
			}
			ops = append(ops, Operation{Operator: "BI"})
			operands = nil
			continue
		}
		ops = append(ops, Operation{Operator: tok.Str, Operands: operands})
		operands = nil
	}
	if len(operands) > 0 {
		return ops, fmt.Errorf("%w: %d left at end of stream", ErrDanglingOperands, len(operands))
	}
	return ops, nil
}

// inlineImageEnd returns the offset just past the EI that closes inline
// image data starting at from. EI must be surrounded by whitespace.
func inlineImageEnd(data []byte, from int64) (int64, bool) {
	for i := int(from); i+2 <= len(data); {
		j := bytes.Index(data[i:], []byte("EI"))
		if j < 0 {
			return 0, false
		}
		at := i + j
		before := at == 0 || isSpace(data[at-1])
		after := at+2 == len(data) || isSpace(data[at+2])
		if before && after {
			return int64(at + 2), true
		}
		i = at + 2
	}
	return 0, false
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

// GraphicsState is the part of the PDF graphics state that affects
// geometry.
type GraphicsState struct {
	CTM   coords.Matrix
	stack []coords.Matrix
}

func NewGraphicsState() *GraphicsState { return &GraphicsState{CTM: coords.Identity()} }

func (gs *GraphicsState) Save() { gs.stack = append(gs.stack, gs.CTM) }

// Restore pops the last saved state. An unbalanced Q is ignored, as
// viewers do.
func (gs *GraphicsState) Restore() {
	if n := len(gs.stack); n > 0 {
		gs.CTM = gs.stack[n-1]
		gs.stack = gs.stack[:n-1]
	}
}

// Depth is the number of saved states.
func (gs *GraphicsState) Depth() int { return len(gs.stack) }

type TextState struct {
	Font           string
	FontSize       float64
	CharSpacing    float64
	WordSpacing    float64
	HScale         float64
	Leading        float64
	Rise           float64
	TextMatrix     coords.Matrix
	TextLineMatrix coords.Matrix
}

func newTextState() *TextState {
	return &TextState{HScale: 1, TextMatrix: coords.Identity(), TextLineMatrix: coords.Identity()}
}

func (ts *TextState) newLine(tx, ty float64) {
	ts.TextLineMatrix = coords.Translate(tx, ty).Multiply(ts.TextLineMatrix)
	ts.TextMatrix = ts.TextLineMatrix
}
