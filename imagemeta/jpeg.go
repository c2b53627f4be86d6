package imagemeta

import (
	"errors"
	"fmt"
)

var (
	ErrNotJPEG              = errors.New("not a JPEG: missing SOI marker")
	ErrTruncated            = errors.New("truncated JPEG segment header")
	ErrInvalidSegmentLength = errors.New("invalid JPEG segment length")
	ErrMissingMarker        = errors.New("expected JPEG marker")
)

// JPEG marker codes used by the stripper.
const (
	markerSOI   = 0xD8
	markerEOI   = 0xD9
	markerSOS   = 0xDA
	markerTEM   = 0x01
	markerRST0  = 0xD0
	markerRST7  = 0xD7
	markerAPP0  = 0xE0
	markerAPP1  = 0xE1
	markerAPP2  = 0xE2
	markerAPP14 = 0xEE
	markerAPP15 = 0xEF
	markerCOM   = 0xFE
)

// Segment describes one marker segment. Length is the big-endian length
// field (which counts itself) and is zero for standalone markers.
type Segment struct {
	Marker byte
	Offset int
	Length int
}

// Name returns the conventional marker mnemonic.
func (s Segment) Name() string { return markerName(s.Marker) }

func markerName(m byte) string {
	switch {
	case m == markerSOI:
		return "SOI"
	case m == markerEOI:
		return "EOI"
	case m == markerSOS:
		return "SOS"
	case m == markerCOM:
		return "COM"
	case m == markerTEM:
		return "TEM"
	case m >= markerRST0 && m <= markerRST7:
		return fmt.Sprintf("RST%d", m-markerRST0)
	case m >= markerAPP0 && m <= markerAPP15:
		return fmt.Sprintf("APP%d", m-markerAPP0)
	case m == 0xDB:
		return "DQT"
	case m == 0xC4:
		return "DHT"
	case m == 0xDD:
		return "DRI"
	case m >= 0xC0 && m <= 0xCF:
		return fmt.Sprintf("SOF%d", m-0xC0)
	}
	return fmt.Sprintf("0x%02X", m)
}

type jpegConfig struct{ dropAll bool }

// JPEGOption adjusts StripJPEG.
type JPEGOption func(*jpegConfig)

// WithDropAllMetadata also removes comments and every APPn segment except
// APP0 (JFIF) and APP14 (Adobe), which decoders rely on.
func WithDropAllMetadata() JPEGOption {
	return func(c *jpegConfig) { c.dropAll = true }
}

func (c jpegConfig) drops(marker byte) bool {
	switch {
	case marker == markerAPP1, marker == markerAPP2:
		return true
	case !c.dropAll:
		return false
	case marker == markerCOM:
		return true
	case marker > markerAPP2 && marker <= markerAPP15:
		return marker != markerAPP14
	}
	return false
}

// walkJPEG visits every segment up to and including SOS or EOI. For SOS,
// end is the end of input; everything after the SOS marker is scan data.
func walkJPEG(data []byte, visit func(seg Segment, end int)) error {
	if len(data) < 2 || data[0] != 0xFF || data[1] != markerSOI {
		return ErrNotJPEG
	}
	visit(Segment{Marker: markerSOI}, 2)
	pos := 2
	for pos < len(data) {
		if data[pos] != 0xFF {
			return fmt.Errorf("%w at offset %d, found 0x%02X", ErrMissingMarker, pos, data[pos])
		}
		start := pos
		for pos < len(data) && data[pos] == 0xFF {
			pos++
		}
		if pos >= len(data) {
			return fmt.Errorf("%w at offset %d", ErrTruncated, start)
		}
		marker := data[pos]
		pos++
		switch {
		case marker == markerTEM, marker >= markerRST0 && marker <= markerRST7:
			visit(Segment{Marker: marker, Offset: pos - 2}, pos)
			continue
		case marker == markerEOI:
			visit(Segment{Marker: marker, Offset: pos - 2}, pos)
			return nil
		}
		if len(data)-pos < 2 {
			return fmt.Errorf("%w: marker %s at offset %d", ErrTruncated, markerName(marker), pos-2)
		}
		length := int(data[pos])<<8 | int(data[pos+1])
		if length < 2 || pos+length > len(data) {
			return fmt.Errorf("%w: marker %s at offset %d declares %d bytes", ErrInvalidSegmentLength, markerName(marker), pos-2, length)
		}
		seg := Segment{Marker: marker, Offset: pos - 2, Length: length}
		if marker == markerSOS {
			visit(seg, len(data))
			return nil
		}
		pos += length
		visit(seg, pos)
	}
	return nil
}

// StripJPEG removes EXIF/XMP (APP1) and ICC (APP2) segments. Scan data is
// copied verbatim from the SOS marker to the end of input.
func StripJPEG(data []byte, opts ...JPEGOption) ([]byte, error) {
	var cfg jpegConfig
	for _, o := range opts {
		o(&cfg)
	}
	out := make([]byte, len(data))
	n := 0
	err := walkJPEG(data, func(seg Segment, end int) {
		if cfg.drops(seg.Marker) {
			return
		}
		out[n], out[n+1] = 0xFF, seg.Marker
		n += 2
		n += copy(out[n:], data[seg.Offset+2:end])
	})
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// JPEGSegments lists the segments ahead of the scan data.
func JPEGSegments(data []byte) ([]Segment, error) {
	var segs []Segment
	err := walkJPEG(data, func(seg Segment, _ int) { segs = append(segs, seg) })
	if err != nil {
		return nil, err
	}
	return segs, nil
}
