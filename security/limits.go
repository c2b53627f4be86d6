package security

// Limits defines security boundaries for parsing and processing PDFs.
// These limits keep hostile input from exhausting memory (zip bombs,
// endless reference chains, huge object tables).
type Limits struct {
	// Maximum decompressed stream size. Default: 100 MB.
	MaxDecompressedSize int64

	// Maximum indirect reference depth when resolving objects. Default: 32.
	MaxIndirectDepth int

	// Maximum number of chained xref sections (/Prev). Default: 50.
	MaxXRefDepth int

	// Maximum string length (bytes). Default: 10 MB.
	MaxStringLength int64

	// Maximum raw stream length (bytes). Default: 100 MB.
	MaxStreamLength int64

	// Maximum number of objects in one document. Default: 1,000,000.
	MaxObjects int
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize: 100 * 1024 * 1024,
		MaxIndirectDepth:    32,
		MaxXRefDepth:        50,
		MaxStringLength:     10 * 1024 * 1024,
		MaxStreamLength:     100 * 1024 * 1024,
		MaxObjects:          1000000,
	}
}

// WithDefaults fills zero fields from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	if l.MaxDecompressedSize <= 0 {
		l.MaxDecompressedSize = d.MaxDecompressedSize
	}
	if l.MaxIndirectDepth <= 0 {
		l.MaxIndirectDepth = d.MaxIndirectDepth
	}
	if l.MaxXRefDepth <= 0 {
		l.MaxXRefDepth = d.MaxXRefDepth
	}
	if l.MaxStringLength <= 0 {
		l.MaxStringLength = d.MaxStringLength
	}
	if l.MaxStreamLength <= 0 {
		l.MaxStreamLength = d.MaxStreamLength
	}
	if l.MaxObjects <= 0 {
		l.MaxObjects = d.MaxObjects
	}
	return l
}
