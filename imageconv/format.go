// Package imageconv converts images between formats and assembles them
// into PDF files. Re-encoding never carries metadata forward.
package imageconv

import (
	"path/filepath"
	"strings"

	"github.com/wudi/privkit/apperr"
	"github.com/wudi/privkit/fileutil"
)

type Format int

const (
	Unknown Format = iota
	JPEG
	PNG
	GIF
	BMP
	TIFF
	WebP
)

var formatNames = map[Format]string{
	JPEG: "jpeg",
	PNG:  "png",
	GIF:  "gif",
	BMP:  "bmp",
	TIFF: "tiff",
	WebP: "webp",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return "unknown"
}

// Extension is the usual file extension, with the dot.
func (f Format) Extension() string {
	switch f {
	case JPEG:
		return ".jpg"
	case Unknown:
		return ""
	}
	return "." + f.String()
}

func (f Format) MIMEType() string {
	if f == Unknown {
		return "application/octet-stream"
	}
	return "image/" + f.String()
}

// CanEncode reports whether Convert can write f. WebP is decode only.
func (f Format) CanEncode() bool {
	return f != Unknown && f != WebP
}

// ParseFormat accepts a format name, an extension or a file name, in any
// case: "jpg", ".JPEG", "photo.tif", "image/png".
func ParseFormat(name string) (Format, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.TrimPrefix(s, "image/")
	if ext := filepath.Ext(s); ext != "" {
		s = ext
	}
	switch strings.TrimPrefix(s, ".") {
	case "jpg", "jpeg", "jpe", "jfif":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "gif":
		return GIF, nil
	case "bmp", "dib":
		return BMP, nil
	case "tif", "tiff":
		return TIFF, nil
	case "webp":
		return WebP, nil
	}
	return Unknown, &apperr.Error{Kind: apperr.KindUnsupported, Message: "unsupported image format", Details: name}
}

// Detect sniffs the format from magic bytes.
func Detect(data []byte) Format {
	f, _ := ParseFormat(fileutil.ImageKind(data))
	return f
}
