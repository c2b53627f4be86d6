package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

func formatJSON(input string, indent int) (string, error) {
	if err := validateJSON(input); err != nil {
		return "", invalidInput(JSON, err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(strings.TrimSpace(input)), "", strings.Repeat(" ", indent)); err != nil {
		return "", invalidInput(JSON, err)
	}
	return buf.String(), nil
}

func minifyJSON(input string) (string, error) {
	if err := validateJSON(input); err != nil {
		return "", invalidInput(JSON, err)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(input)); err != nil {
		return "", invalidInput(JSON, err)
	}
	return buf.String(), nil
}

// validateJSON requires exactly one JSON value.
func validateJSON(input string) error {
	dec := json.NewDecoder(strings.NewReader(input))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return jsonError(input, err, dec.InputOffset())
	}
	if dec.More() {
		return &syntaxError{line: lineAt(input, dec.InputOffset()), err: errors.New("unexpected data after top-level value")}
	}
	return nil
}

func jsonError(input string, err error, fallback int64) error {
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return &syntaxError{line: lineAt(input, se.Offset), err: err}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
		return &syntaxError{line: lineAt(input, int64(len(input))), err: errors.New("unexpected end of input")}
	}
	return &syntaxError{line: lineAt(input, fallback), err: err}
}
