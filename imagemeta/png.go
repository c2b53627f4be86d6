package imagemeta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrNotPNG       = errors.New("not a PNG: invalid signature")
	ErrChunkOverrun = errors.New("PNG chunk overruns buffer")
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

// ChunkClass groups PNG chunk types by how the stripper treats them.
type ChunkClass int

const (
	ChunkOther ChunkClass = iota
	ChunkCritical
	ChunkKeep
	ChunkMetadata
)

func (c ChunkClass) String() string {
	switch c {
	case ChunkCritical:
		return "critical"
	case ChunkKeep:
		return "keep"
	case ChunkMetadata:
		return "metadata"
	}
	return "other"
}

// Kept reports whether chunks of this class survive StripPNG.
func (c ChunkClass) Kept() bool { return c == ChunkCritical || c == ChunkKeep }

var chunkClasses = map[string]ChunkClass{
	"IHDR": ChunkCritical, "PLTE": ChunkCritical, "IDAT": ChunkCritical, "IEND": ChunkCritical,
	"tRNS": ChunkKeep, "gAMA": ChunkKeep, "cHRM": ChunkKeep, "sRGB": ChunkKeep,
	"tEXt": ChunkMetadata, "iTXt": ChunkMetadata, "zTXt": ChunkMetadata,
	"tIME": ChunkMetadata, "pHYs": ChunkMetadata, "eXIf": ChunkMetadata,
}

func ClassifyChunk(typ string) ChunkClass { return chunkClasses[typ] }

// Chunk describes one PNG chunk. Offset points at its length field.
type Chunk struct {
	Type   string
	Offset int
	Length uint32
	Class  ChunkClass
}

// walkPNG visits chunks until IEND or end of input.
func walkPNG(data []byte, visit func(c Chunk, end int)) error {
	if len(data) < len(pngSignature) || !bytes.Equal(data[:len(pngSignature)], pngSignature) {
		return ErrNotPNG
	}
	pos := len(pngSignature)
	for pos < len(data) {
		if len(data)-pos < 12 {
			return fmt.Errorf("%w: %d trailing bytes at offset %d", ErrChunkOverrun, len(data)-pos, pos)
		}
		length := binary.BigEndian.Uint32(data[pos:])
		if uint64(length) > uint64(len(data)-pos-12) {
			return fmt.Errorf("%w: chunk at offset %d declares %d bytes", ErrChunkOverrun, pos, length)
		}
		typ := string(data[pos+4 : pos+8])
		end := pos + 12 + int(length)
		visit(Chunk{Type: typ, Offset: pos, Length: length, Class: ClassifyChunk(typ)}, end)
		pos = end
		if typ == "IEND" {
			break
		}
	}
	return nil
}

// StripPNG keeps critical chunks plus tRNS, gAMA, cHRM and sRGB, copying
// each verbatim with its CRC. Bytes after IEND are discarded.
func StripPNG(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	out = append(out, pngSignature...)
	err := walkPNG(data, func(c Chunk, end int) {
		if c.Class.Kept() {
			out = append(out, data[c.Offset:end]...)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PNGChunks lists the chunks of data.
func PNGChunks(data []byte) ([]Chunk, error) {
	var chunks []Chunk
	err := walkPNG(data, func(c Chunk, _ int) { chunks = append(chunks, c) })
	if err != nil {
		return nil, err
	}
	return chunks, nil
}
