package optimize

import (
	"context"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/privkit/document"
	"github.com/wudi/privkit/ir/raw"
)

// maxSharePasses bounds the rounds of shareStreams. Sharing one stream can
// make streams that point at it identical, which the next round catches.
const maxSharePasses = 4

// shareStreams points every reference to a duplicate stream at the first
// copy in object order and deletes the rest. It returns the number of
// streams removed.
func shareStreams(ctx context.Context, doc *document.Document) (int, error) {
	rd := doc.Raw()
	total := 0
	for pass := 0; pass < maxSharePasses; pass++ {
		seen := make(map[[blake2b.Size256]byte]raw.ObjectRef)
		dups := make(map[raw.ObjectRef]raw.ObjectRef)
		for _, ref := range rd.SortedRefs() {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			stm, ok := rd.Objects[ref].(*raw.StreamObj)
			if !ok {
				continue
			}
			sum, err := digest(stm)
			if err != nil {
				return total, err
			}
			if first, ok := seen[sum]; ok {
				dups[ref] = first
				continue
			}
			seen[sum] = ref
		}
		if len(dups) == 0 {
			break
		}
		redirect := func(r raw.ObjectRef) raw.Object {
			if to, ok := dups[r]; ok {
				return raw.RefObj{R: to}
			}
			return raw.RefObj{R: r}
		}
		for ref := range dups {
			delete(rd.Objects, ref)
		}
		for _, obj := range rd.Objects {
			raw.Rewrite(obj, redirect)
		}
		raw.Rewrite(rd.Trailer, redirect)
		total += len(dups)
	}
	return total, nil
}
