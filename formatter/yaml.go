package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var yamlLine = regexp.MustCompile(`line (\d+)`)

// parseYAML reads every document of a stream.
func parseYAML(input string) ([]*yaml.Node, error) {
	dec := yaml.NewDecoder(strings.NewReader(input))
	var docs []*yaml.Node
	for {
		var n yaml.Node
		err := dec.Decode(&n)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
				line, _ = strconv.Atoi(m[1])
			}
			return nil, &syntaxError{line: line, err: err}
		}
		docs = append(docs, &n)
	}
	if len(docs) == 0 {
		return nil, errors.New("no YAML document found")
	}
	return docs, nil
}

func encodeYAML(docs []*yaml.Node, indent int) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(indent)
	for _, d := range docs {
		if err := enc.Encode(d); err != nil {
			return "", err
		}
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatYAML(input string, indent int) (string, error) {
	docs, err := parseYAML(input)
	if err != nil {
		return "", invalidInput(YAML, err)
	}
	for _, d := range docs {
		blockStyle(d)
	}
	return encodeYAML(docs, indent)
}

// minifyYAML writes each document as compact JSON, one per line.
func minifyYAML(input string) (string, error) {
	docs, err := parseYAML(input)
	if err != nil {
		return "", invalidInput(YAML, err)
	}
	lines := make([]string, 0, len(docs))
	for _, d := range docs {
		var buf bytes.Buffer
		if err := writeJSON(&buf, d, 0); err != nil {
			return "", invalidInput(YAML, err)
		}
		lines = append(lines, buf.String())
	}
	return strings.Join(lines, "\n"), nil
}

func yamlToJSON(input string) (string, error) {
	docs, err := parseYAML(input)
	if err != nil {
		return "", invalidInput(YAML, err)
	}
	if len(docs) > 1 {
		return "", invalidInput(YAML, errors.New("JSON holds a single document; the input has several"))
	}
	var buf bytes.Buffer
	if err := writeJSON(&buf, docs[0], 0); err != nil {
		return "", invalidInput(YAML, err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", strings.Repeat(" ", DefaultIndent)); err != nil {
		return "", err
	}
	return out.String(), nil
}

// jsonToYAML relies on JSON being a subset of YAML: the YAML parser reads
// the input into nodes, which are then written in block style.
func jsonToYAML(input string) (string, error) {
	if err := validateJSON(input); err != nil {
		return "", invalidInput(JSON, err)
	}
	docs, err := parseYAML(input)
	if err != nil {
		return "", invalidInput(JSON, err)
	}
	for _, d := range docs {
		blockStyle(d)
	}
	return encodeYAML(docs, DefaultIndent)
}

// blockStyle clears flow and quoting styles so the encoder picks block
// collections and plain scalars where the value allows it.
func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle | yaml.DoubleQuotedStyle | yaml.SingleQuotedStyle
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// maxAliasDepth bounds alias expansion while writing JSON.
const maxAliasDepth = 64

func writeJSON(buf *bytes.Buffer, n *yaml.Node, depth int) error {
	if depth > maxAliasDepth {
		return errors.New("aliases nest too deeply")
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeJSON(buf, n.Content[0], depth)
	case yaml.AliasNode:
		return writeJSON(buf, n.Alias, depth+1)
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, c, depth); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key := n.Content[i]
			if key.Kind == yaml.AliasNode {
				key = key.Alias
			}
			if key.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: mapping keys must be scalars to convert to JSON", key.Line)
			}
			k, _ := json.Marshal(key.Value)
			buf.Write(k)
			buf.WriteByte(':')
			if err := writeJSON(buf, n.Content[i+1], depth); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.ScalarNode:
		return writeScalar(buf, n)
	}
	return nil
}

func writeScalar(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.ShortTag() {
	case "!!null":
		buf.WriteString("null")
		return nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return err
		}
		buf.WriteString(strconv.FormatBool(b))
		return nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			buf.WriteString(strconv.FormatInt(i, 10))
			return nil
		}
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return err
		}
		// JSON has no Inf or NaN.
		if s := strconv.FormatFloat(f, 'g', -1, 64); !strings.ContainsAny(s, "IN") {
			buf.WriteString(s)
			return nil
		}
	}
	s, _ := json.Marshal(n.Value)
	buf.Write(s)
	return nil
}
