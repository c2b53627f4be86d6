// Package fileutil holds the input checks and naming helpers shared by the
// privkit operations.
package fileutil

import (
	"bytes"
	"fmt"
	"math"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validation is the outcome of a pre-flight check. Error is empty when
// IsValid is set.
type Validation struct {
	IsValid bool
	Error   string
}

func invalid(format string, args ...interface{}) Validation {
	return Validation{Error: fmt.Sprintf(format, args...)}
}

var pdfMagic = []byte("%PDF-")

// IsPDF accepts a .pdf extension or a %PDF- header in the first KiB.
func IsPDF(name string, data []byte) bool {
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return true
	}
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, pdfMagic)
}

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
	".webp": true, ".tif": true, ".tiff": true,
}

// IsImage accepts a known image extension or image magic bytes.
func IsImage(name string, data []byte) bool {
	if imageExts[strings.ToLower(filepath.Ext(name))] {
		return true
	}
	return ImageKind(data) != ""
}

// ImageKind sniffs the image container from magic bytes.
func ImageKind(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "jpeg"
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "png"
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return "gif"
	case bytes.HasPrefix(data, []byte("BM")) && len(data) >= 14:
		return "bmp"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "webp"
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return "tiff"
	}
	return ""
}

// ValidFileSize reports 0 < size <= max. A non-positive max disables the
// upper bound.
func ValidFileSize(size, max int64) bool {
	if size <= 0 {
		return false
	}
	return max <= 0 || size <= max
}

func ValidatePDF(name string, data []byte, max int64) Validation {
	if !IsPDF(name, data) {
		return invalid("%s is not a PDF file", displayName(name))
	}
	return validateSize(name, int64(len(data)), max)
}

func ValidateImage(name string, data []byte, max int64) Validation {
	if !IsImage(name, data) {
		return invalid("%s is not a supported image (JPEG, PNG, GIF, BMP, WebP, TIFF)", displayName(name))
	}
	return validateSize(name, int64(len(data)), max)
}

func validateSize(name string, size, max int64) Validation {
	if size == 0 {
		return invalid("%s is empty", displayName(name))
	}
	if !ValidFileSize(size, max) {
		return invalid("%s is %s; the limit is %s", displayName(name), FormatFileSize(size), FormatFileSize(max))
	}
	return Validation{IsValid: true}
}

func displayName(name string) string {
	if name == "" {
		return "input"
	}
	return path.Base(filepath.ToSlash(name))
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// FormatFileSize renders n with 1024-based units and at most two
// decimals: 0 Bytes, 1.5 KB, 2 MB.
func FormatFileSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := math.Round(float64(n)/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

const maxFilenameBytes = 255

// SanitizeFilename makes name safe to write on any common file system.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		name = ""
	}
	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		if r == utf8.RuneError || unicode.IsControl(r) || strings.ContainsRune(`<>:"/\|?*`, r) {
			r = '_'
		}
		if r == '_' && lastUnderscore {
			continue
		}
		lastUnderscore = r == '_'
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), ". ")
	for len(out) > maxFilenameBytes {
		ext := filepath.Ext(out)
		if len(ext) >= maxFilenameBytes/2 {
			ext = ""
		}
		stem := out[:len(out)-len(ext)]
		cut := maxFilenameBytes - len(ext)
		for cut > 0 && !utf8.RuneStart(stem[cut]) {
			cut--
		}
		out = stem[:cut] + ext
	}
	if out == "" || out == "_" {
		return "file"
	}
	return out
}

// OutputName derives a result file name: OutputName("report.pdf",
// "redacted", "") is "report_redacted.pdf". A non-empty ext replaces the
// original extension.
func OutputName(original, suffix, ext string) string {
	base := SanitizeFilename(original)
	origExt := filepath.Ext(base)
	stem := strings.TrimSuffix(base, origExt)
	if ext == "" {
		ext = origExt
	} else if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if stem == "" {
		stem = "file"
	}
	if suffix != "" {
		stem += "_" + suffix
	}
	return stem + ext
}
