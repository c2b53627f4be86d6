package formatter

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// validateXML checks well-formedness, including matching end tags and a
// single root element.
func validateXML(input string) error {
	dec := xml.NewDecoder(strings.NewReader(input))
	dec.Strict = true
	roots, depth := 0, 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return xmlError(input, err, dec)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
				if roots > 1 {
					line, _ := dec.InputPos()
					return &syntaxError{line: line, err: errors.New("more than one root element: <" + t.Name.Local + ">")}
				}
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				line, _ := dec.InputPos()
				return &syntaxError{line: line, err: errors.New("text outside the root element")}
			}
		}
	}
	if roots == 0 {
		return &syntaxError{err: errors.New("no root element")}
	}
	return nil
}

func xmlError(input string, err error, dec *xml.Decoder) error {
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return &syntaxError{line: se.Line, err: errors.New(se.Msg)}
	}
	line, _ := dec.InputPos()
	return &syntaxError{line: line, err: err}
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", `"`, "&quot;", "\n", "&#xA;", "\r", "&#xD;", "\t", "&#x9;")
)

// formatXML re-emits the token stream of input. Character data is trimmed
// and dropped when only whitespace remains; comments, processing
// instructions and directives are kept. Elements holding only text stay on
// one line. An empty indent produces minified output.
func formatXML(input, indent string) (string, error) {
	if err := validateXML(input); err != nil {
		return "", invalidInput(XML, err)
	}
	p := &xmlPrinter{indent: indent}
	dec := xml.NewDecoder(strings.NewReader(input))
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", invalidInput(XML, err)
		}
		p.token(tok)
	}
	return p.buf.String(), nil
}

type xmlPrinter struct {
	buf    strings.Builder
	indent string
	// blocks has one entry per open element, set once the element holds
	// anything other than text.
	blocks []bool
}

func (p *xmlPrinter) token(tok xml.Token) {
	switch t := tok.(type) {
	case xml.StartElement:
		p.block()
		p.buf.WriteString("<" + qualified(t.Name))
		for _, a := range t.Attr {
			p.buf.WriteString(" " + qualified(a.Name) + `="` + attrEscaper.Replace(a.Value) + `"`)
		}
		p.buf.WriteByte('>')
		p.blocks = append(p.blocks, false)
	case xml.EndElement:
		hadBlocks := false
		if n := len(p.blocks); n > 0 {
			hadBlocks = p.blocks[n-1]
			p.blocks = p.blocks[:n-1]
		}
		if hadBlocks {
			p.newline()
		}
		p.buf.WriteString("</" + qualified(t.Name) + ">")
	case xml.CharData:
		if text := strings.TrimSpace(string(t)); text != "" {
			p.buf.WriteString(textEscaper.Replace(text))
		}
	case xml.Comment:
		p.block()
		p.buf.WriteString("<!--" + string(t) + "-->")
	case xml.ProcInst:
		p.block()
		p.buf.WriteString("<?" + t.Target)
		if len(t.Inst) > 0 {
			p.buf.WriteString(" " + string(t.Inst))
		}
		p.buf.WriteString("?>")
	case xml.Directive:
		p.block()
		p.buf.WriteString("<!" + string(t) + ">")
	}
}

// block starts a new line for a child that is not text and marks the
// parent as holding blocks.
func (p *xmlPrinter) block() {
	if n := len(p.blocks); n > 0 {
		p.blocks[n-1] = true
	}
	if p.buf.Len() > 0 {
		p.newline()
	}
}

func (p *xmlPrinter) newline() {
	if p.indent == "" {
		return
	}
	p.buf.WriteByte('\n')
	p.buf.WriteString(strings.Repeat(p.indent, len(p.blocks)))
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
