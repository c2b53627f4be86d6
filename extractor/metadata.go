package extractor

import (
	"context"

	"github.com/wudi/privkit/document"
	"github.com/wudi/privkit/geo"
	"github.com/wudi/privkit/ir/raw"
)

// PageInfo describes the visible geometry of one page in points.
type PageInfo struct {
	Number int
	Width  float64
	Height float64
	Rotate int
}

// Metadata holds document properties and the metadata a privacy review
// cares about.
type Metadata struct {
	Version   string
	PageCount int
	Info      map[string]string
	// XMP is the raw catalog metadata stream, if any.
	XMP   []byte
	Pages []PageInfo
	// PageMetadata counts pages that carry their own /Metadata or
	// /PieceInfo entries.
	PageMetadata int
	// GeoPages counts pages registered to geographic coordinates.
	GeoPages int
	// Location is the centre of the first geospatial viewport found.
	Location *Location
}

// Location is a latitude and longitude in degrees.
type Location struct {
	Lat, Lon float64
}

// HasMetadata reports whether StripMetadata would remove anything.
func (m *Metadata) HasMetadata() bool {
	return len(m.Info) > 0 || len(m.XMP) > 0 || m.PageMetadata > 0 || m.GeoPages > 0
}

// ExtractMetadata reads document properties from an open document.
func ExtractMetadata(ctx context.Context, doc *document.Document) (*Metadata, error) {
	m := &Metadata{
		Version:   doc.Version(),
		PageCount: doc.PageCount(),
		Info:      doc.Info(),
	}
	if cat, ok := doc.Catalog(); ok {
		if stm, ok := doc.Resolve(cat.KV["Metadata"]).(*raw.StreamObj); ok {
			if data, err := doc.DecodeStream(ctx, stm); err == nil {
				m.XMP = data
			}
		}
	}
	for i := 0; i < doc.PageCount(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := doc.Page(i)
		if err != nil {
			return nil, err
		}
		box := p.VisibleBox()
		w, h := box.Width(), box.Height()
		if p.Rotate == 90 || p.Rotate == 270 {
			w, h = h, w
		}
		m.Pages = append(m.Pages, PageInfo{Number: i + 1, Width: w, Height: h, Rotate: p.Rotate})
		if _, ok := p.Dict.Get("Metadata"); ok {
			m.PageMetadata++
		} else if _, ok := p.Dict.Get("PieceInfo"); ok {
			m.PageMetadata++
		}
		if geo.HasGeo(p.Dict, doc.Resolve) {
			m.GeoPages++
			if m.Location == nil {
				m.Location = locate(p.Dict, doc.Resolve)
			}
		}
	}
	return m, nil
}

func locate(page *raw.DictObj, resolve func(raw.Object) raw.Object) *Location {
	for _, vp := range geo.Viewports(page, resolve) {
		if !vp.Measure.IsGeo() {
			continue
		}
		cx := (vp.BBox.LLX + vp.BBox.URX) / 2
		cy := (vp.BBox.LLY + vp.BBox.URY) / 2
		if lat, lon, err := vp.Locate(cx, cy); err == nil {
			return &Location{Lat: lat, Lon: lon}
		}
	}
	return nil
}
