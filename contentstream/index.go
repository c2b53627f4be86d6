package contentstream

import (
	"sort"

	"github.com/wudi/privkit/coords"
)

const (
	nodeCapacity = 16
	maxDepth     = 10
)

// Index is a quadtree over operation boxes for area queries.
type Index struct {
	root *quadNode
	ops  []OpBBox
}

type quadNode struct {
	bounds   coords.Box
	depth    int
	items    []int
	children []*quadNode
}

// NewIndex indexes boxes that intersect bounds, typically the page's
// MediaBox. Boxes outside bounds are dropped.
func NewIndex(bounds coords.Box, boxes []OpBBox) *Index {
	idx := &Index{root: &quadNode{bounds: bounds}, ops: boxes}
	for i, b := range boxes {
		idx.root.insert(idx, i, b.Box)
	}
	return idx
}

func (n *quadNode) insert(idx *Index, item int, box coords.Box) bool {
	if !touches(n.bounds, box) {
		return false
	}
	if n.children != nil {
		for _, c := range n.children {
			if contains(c.bounds, box) && c.insert(idx, item, box) {
				return true
			}
		}
		n.items = append(n.items, item)
		return true
	}
	if len(n.items) < nodeCapacity || n.depth >= maxDepth {
		n.items = append(n.items, item)
		return true
	}
	n.subdivide()
	old := n.items
	n.items = nil
	for _, it := range old {
		n.insert(idx, it, idx.ops[it].Box)
	}
	return n.insert(idx, item, box)
}

func (n *quadNode) subdivide() {
	b := n.bounds
	mx, my := (b.LLX+b.URX)/2, (b.LLY+b.URY)/2
	d := n.depth + 1
	n.children = []*quadNode{
		{bounds: coords.Box{LLX: b.LLX, LLY: my, URX: mx, URY: b.URY}, depth: d},
		{bounds: coords.Box{LLX: mx, LLY: my, URX: b.URX, URY: b.URY}, depth: d},
		{bounds: coords.Box{LLX: b.LLX, LLY: b.LLY, URX: mx, URY: my}, depth: d},
		{bounds: coords.Box{LLX: mx, LLY: b.LLY, URX: b.URX, URY: my}, depth: d},
	}
}

func (n *quadNode) query(idx *Index, area coords.Box, found map[int]bool) {
	if !touches(n.bounds, area) {
		return
	}
	for _, it := range n.items {
		if overlaps(idx.ops[it].Box, area) {
			found[it] = true
		}
	}
	for _, c := range n.children {
		c.query(idx, area, found)
	}
}

// Query returns the operations whose boxes overlap area with a positive
// area, in content order.
func (idx *Index) Query(area coords.Box) []OpBBox {
	found := make(map[int]bool)
	idx.root.query(idx, area, found)
	items := make([]int, 0, len(found))
	for it := range found {
		items = append(items, it)
	}
	sort.Ints(items)
	out := make([]OpBBox, len(items))
	for i, it := range items {
		out[i] = idx.ops[it]
	}
	return out
}

// touches includes shared edges so degenerate boxes are still placed.
func touches(a, b coords.Box) bool {
	return b.LLX <= a.URX && b.URX >= a.LLX && b.LLY <= a.URY && b.URY >= a.LLY
}

func overlaps(a, b coords.Box) bool {
	return b.LLX < a.URX && b.URX > a.LLX && b.LLY < a.URY && b.URY > a.LLY
}

func contains(outer, inner coords.Box) bool {
	return inner.LLX >= outer.LLX && inner.URX <= outer.URX &&
		inner.LLY >= outer.LLY && inner.URY <= outer.URY
}
