// Package formatter pretty-prints, minifies, validates and converts JSON,
// YAML and XML text, and renders Markdown and HTML.
package formatter

import (
	"fmt"
	"strings"

	"github.com/wudi/privkit/apperr"
)

type Kind int

const (
	JSON Kind = iota + 1
	YAML
	XML
)

func (k Kind) String() string {
	switch k {
	case JSON:
		return "json"
	case YAML:
		return "yaml"
	case XML:
		return "xml"
	}
	return "unknown"
}

// ParseKind accepts a kind name or a file extension.
func ParseKind(s string) (Kind, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "xml":
		return XML, nil
	}
	return 0, &apperr.Error{Kind: apperr.KindUnsupported, Message: "unsupported data format", Details: s}
}

// DefaultIndent is used when Format gets an indent of zero.
const DefaultIndent = 2

// Validation is the outcome of Validate. Line is one-based and zero when
// the parser did not report a position.
type Validation struct {
	IsValid bool
	Error   string
	Line    int
}

// Format re-indents input with indent spaces per level.
func Format(input string, kind Kind, indent int) (string, error) {
	if indent == 0 {
		indent = DefaultIndent
	}
	if indent < 0 || indent > 16 {
		return "", apperr.Validation("invalid indent", fmt.Sprintf("%d is outside 1..16", indent))
	}
	if strings.TrimSpace(input) == "" {
		return "", apperr.Validation("input is empty")
	}
	switch kind {
	case JSON:
		return formatJSON(input, indent)
	case YAML:
		return formatYAML(input, indent)
	case XML:
		return formatXML(input, strings.Repeat(" ", indent))
	}
	return "", unknownKind(kind)
}

// Minify removes insignificant whitespace. YAML comes out in flow style,
// which is also valid JSON.
func Minify(input string, kind Kind) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", apperr.Validation("input is empty")
	}
	switch kind {
	case JSON:
		return minifyJSON(input)
	case YAML:
		return minifyYAML(input)
	case XML:
		return formatXML(input, "")
	}
	return "", unknownKind(kind)
}

// Validate parses input and reports the first error.
func Validate(input string, kind Kind) Validation {
	if strings.TrimSpace(input) == "" {
		return Validation{Error: "input is empty"}
	}
	var err error
	switch kind {
	case JSON:
		err = validateJSON(input)
	case YAML:
		_, err = parseYAML(input)
	case XML:
		err = validateXML(input)
	default:
		err = unknownKind(kind)
	}
	if err != nil {
		return Validation{Error: err.Error(), Line: lineOf(err)}
	}
	return Validation{IsValid: true}
}

// Convert translates between JSON and YAML. Converting a kind to itself
// formats it.
func Convert(input string, from, to Kind) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", apperr.Validation("input is empty")
	}
	switch {
	case from == to:
		return Format(input, from, DefaultIndent)
	case from == JSON && to == YAML:
		return jsonToYAML(input)
	case from == YAML && to == JSON:
		return yamlToJSON(input)
	}
	return "", &apperr.Error{Kind: apperr.KindUnsupported, Message: "unsupported conversion", Details: from.String() + " to " + to.String()}
}

func unknownKind(k Kind) error {
	return &apperr.Error{Kind: apperr.KindUnsupported, Message: "unsupported data format", Details: k.String()}
}

// syntaxError carries a one-based line number alongside the parser
// message.
type syntaxError struct {
	line int
	err  error
}

func (e *syntaxError) Error() string {
	if e.line > 0 {
		return fmt.Sprintf("line %d: %v", e.line, e.err)
	}
	return e.err.Error()
}

func (e *syntaxError) Unwrap() error { return e.err }

func lineOf(err error) int {
	if se, ok := err.(*syntaxError); ok {
		return se.line
	}
	return 0
}

func invalidInput(kind Kind, err error) error {
	return &apperr.Error{Kind: apperr.KindValidation, Message: "invalid " + strings.ToUpper(kind.String()), Details: err.Error(), Cause: err}
}

// lineAt is the one-based line containing byte offset off.
func lineAt(s string, off int64) int {
	if off > int64(len(s)) {
		off = int64(len(s))
	}
	if off < 0 {
		off = 0
	}
	return strings.Count(s[:off], "\n") + 1
}
