package formatter

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipped elements contribute no text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Head:     true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Svg:      true,
}

// blocks start and end on their own line.
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Nav: true, atom.Aside: true, atom.Main: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Ul: true, atom.Ol: true, atom.Li: true, atom.Dl: true, atom.Dt: true, atom.Dd: true,
	atom.Table: true, atom.Tr: true, atom.Blockquote: true, atom.Pre: true,
	atom.Form: true, atom.Fieldset: true, atom.Figure: true, atom.Figcaption: true,
	atom.Address: true, atom.Hr: true,
}

var (
	spaceRun = regexp.MustCompile(`[ \t\r\n\f]+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

// HTMLToText returns the visible text of an HTML document or fragment.
// Block elements and <br> break lines, list items get a "- " bullet, and
// table cells are separated by tabs.
func HTMLToText(src string) (string, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", err
	}
	var w textWriter
	w.walk(root, false)
	out := blankRun.ReplaceAllString(w.buf.String(), "\n\n")
	lines := strings.Split(out, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

type textWriter struct {
	buf strings.Builder
}

func (w *textWriter) walk(n *html.Node, pre bool) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data, pre)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if skipped[n.DataAtom] {
			return
		}
		switch n.DataAtom {
		case atom.Br:
			w.buf.WriteByte('\n')
			return
		case atom.Td, atom.Th:
			if n.PrevSibling != nil {
				w.buf.WriteByte('\t')
			}
		case atom.Pre:
			pre = true
		}
		if blocks[n.DataAtom] {
			w.lineBreak()
			if n.DataAtom == atom.Li {
				w.buf.WriteString("- ")
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, pre)
	}
	if n.Type == html.ElementNode && blocks[n.DataAtom] {
		w.lineBreak()
	}
}

func (w *textWriter) text(s string, pre bool) {
	if pre {
		w.buf.WriteString(s)
		return
	}
	s = spaceRun.ReplaceAllString(s, " ")
	if s == " " || s == "" {
		if w.buf.Len() > 0 && !w.endsWithSpace() {
			w.buf.WriteByte(' ')
		}
		return
	}
	if strings.HasPrefix(s, " ") && (w.buf.Len() == 0 || w.endsWithSpace()) {
		s = s[1:]
	}
	w.buf.WriteString(s)
}

func (w *textWriter) endsWithSpace() bool {
	str := w.buf.String()
	if str == "" {
		return true
	}
	last := str[len(str)-1]
	return last == ' ' || last == '\n' || last == '\t'
}

func (w *textWriter) lineBreak() {
	if w.buf.Len() > 0 && !strings.HasSuffix(w.buf.String(), "\n") {
		w.buf.WriteByte('\n')
	}
}
