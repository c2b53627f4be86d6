// Package codec encodes and decodes Base64 text and data URLs.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/wudi/privkit/apperr"
)

var (
	ErrInvalidCharacters = errors.New("base64: input contains characters outside the alphabet")
	ErrInvalidLength     = errors.New("base64: input length is not valid")
	ErrNotUTF8           = errors.New("base64: decoded bytes are not valid UTF-8 text")
	ErrNotDataURL        = errors.New("not a data URL")
)

// Variant selects the Base64 alphabet.
type Variant int

const (
	// Standard is the RFC 4648 section 4 alphabet with padding.
	Standard Variant = iota
	// URLSafe is the RFC 4648 section 5 alphabet. Encoding omits padding;
	// decoding accepts it.
	URLSafe
)

func (v Variant) String() string {
	if v == URLSafe {
		return "url"
	}
	return "standard"
}

// ParseVariant accepts "standard", "std", "url" and "urlsafe".
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "std":
		return Standard, nil
	case "url", "urlsafe", "url-safe":
		return URLSafe, nil
	}
	return Standard, apperr.Validation("unknown Base64 variant", s)
}

var alphabets = map[Variant]*regexp.Regexp{
	Standard: regexp.MustCompile(`^[A-Za-z0-9+/]*={0,2}$`),
	URLSafe:  regexp.MustCompile(`^[A-Za-z0-9_-]*={0,2}$`),
}

func encoding(v Variant) *base64.Encoding {
	if v == URLSafe {
		return base64.RawURLEncoding
	}
	return base64.StdEncoding
}

// Encode encodes the UTF-8 bytes of s.
func Encode(s string, v Variant) string { return EncodeBytes([]byte(s), v) }

func EncodeBytes(b []byte, v Variant) string { return encoding(v).EncodeToString(b) }

// DecodeBytes removes all whitespace from s, checks it against the
// alphabet of v and decodes it. Padding is optional in both variants.
func DecodeBytes(s string, v Variant) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if !alphabets[v].MatchString(s) {
		return nil, invalid(ErrInvalidCharacters)
	}
	s = strings.TrimRight(s, "=")
	if len(s)%4 == 1 {
		return nil, invalid(ErrInvalidLength)
	}
	raw := base64.RawStdEncoding
	if v == URLSafe {
		raw = base64.RawURLEncoding
	}
	out, err := raw.DecodeString(s)
	if err != nil {
		return nil, invalid(fmt.Errorf("%w: %v", ErrInvalidLength, err))
	}
	return out, nil
}

// Decode decodes s and requires the result to be UTF-8 text.
func Decode(s string, v Variant) (string, error) {
	b, err := DecodeBytes(s, v)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", invalid(ErrNotUTF8)
	}
	return string(b), nil
}

// IsValid reports whether s decodes under v.
func IsValid(s string, v Variant) bool {
	_, err := DecodeBytes(s, v)
	return err == nil
}

func invalid(cause error) error {
	return apperr.Wrap(apperr.KindValidation, "invalid Base64 input", cause)
}

// DataURL builds an RFC 2397 data URL with a Base64 payload.
func DataURL(mime string, data []byte) string {
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL splits a data URL into its media type and payload. Payloads
// without ;base64 are percent-decoded. A missing media type defaults to
// text/plain;charset=US-ASCII.
func ParseDataURL(s string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return "", nil, apperr.Wrap(apperr.KindValidation, "invalid data URL", ErrNotDataURL)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, apperr.Wrap(apperr.KindValidation, "invalid data URL", fmt.Errorf("%w: missing comma", ErrNotDataURL))
	}
	meta, isBase64 := strings.CutSuffix(meta, ";base64")
	switch mime = meta; {
	case mime == "":
		mime = "text/plain;charset=US-ASCII"
	case strings.HasPrefix(mime, ";"):
		mime = "text/plain" + mime
	}
	if isBase64 {
		data, err = DecodeBytes(payload, Standard)
		if err != nil {
			if unescaped, uerr := url.PathUnescape(payload); uerr == nil {
				data, err = DecodeBytes(unescaped, Standard)
			}
		}
		if err != nil {
			return "", nil, err
		}
		return mime, data, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.KindValidation, "invalid data URL", err)
	}
	return mime, []byte(text), nil
}
