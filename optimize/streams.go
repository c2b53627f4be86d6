package optimize

import (
	"context"

	"github.com/wudi/privkit/document"
	"github.com/wudi/privkit/filters"
	"github.com/wudi/privkit/ir/raw"
)

// recodable lists the filters whose output the writer can recompress with
// Flate without losing anything.
var recodable = map[string]bool{
	"FlateDecode":     true,
	"LZWDecode":       true,
	"ASCII85Decode":   true,
	"ASCIIHexDecode":  true,
	"RunLengthDecode": true,
}

// recodeStreams decodes every stream that only uses general purpose
// filters and leaves the data unfiltered, so the writer compresses it again
// at its own level. Streams that fail to decode are kept as they are.
func recodeStreams(ctx context.Context, doc *document.Document) (int, error) {
	n := 0
	for _, obj := range doc.Raw().Objects {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		stm, ok := obj.(*raw.StreamObj)
		if !ok || stm.Dict == nil {
			continue
		}
		names, _ := filters.ExtractFilters(stm.Dict)
		if len(names) == 0 || !allRecodable(names) {
			continue
		}
		data, err := doc.DecodeStream(ctx, stm)
		if err != nil {
			continue
		}
		stm.Data = data
		stm.Dict.Delete("Filter")
		stm.Dict.Delete("DecodeParms")
		stm.Dict.Delete("DL")
		n++
	}
	return n, nil
}

func allRecodable(names []string) bool {
	for _, name := range names {
		if !recodable[name] {
			return false
		}
	}
	return true
}
