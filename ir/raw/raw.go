package raw

import (
	"errors"
	"fmt"
	"sort"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// ErrReferenceLoop is returned when resolving a chain of references that
// never reaches a direct object.
var ErrReferenceLoop = errors.New("reference chain too deep")

const maxResolveDepth = 32

// Document is the root container for raw PDF objects.
type Document struct {
	Objects   map[ObjectRef]Object
	Trailer   *DictObj
	Version   string // e.g., "1.7"
	Encrypted bool
}

// NewDocument returns an empty document with an empty trailer.
func NewDocument(version string) *Document {
	if version == "" {
		version = "1.7"
	}
	return &Document{
		Objects: make(map[ObjectRef]Object),
		Trailer: Dict(),
		Version: version,
	}
}

// Resolve follows references until a direct object is reached. Dangling
// references resolve to NullObj, as the PDF format requires.
func (d *Document) Resolve(o Object) (Object, error) {
	for depth := 0; depth < maxResolveDepth; depth++ {
		ref, ok := o.(RefObj)
		if !ok {
			return o, nil
		}
		next, ok := d.Objects[ref.R]
		if !ok {
			return NullObj{}, nil
		}
		o = next
	}
	return nil, ErrReferenceLoop
}

// ResolveDict resolves o and returns it as a dictionary. Streams yield
// their dictionary.
func (d *Document) ResolveDict(o Object) (*DictObj, bool) {
	r, err := d.Resolve(o)
	if err != nil {
		return nil, false
	}
	switch v := r.(type) {
	case *DictObj:
		return v, true
	case *StreamObj:
		return v.Dict, v.Dict != nil
	}
	return nil, false
}

// MaxObjectNum returns the highest object number in use.
func (d *Document) MaxObjectNum() int {
	max := 0
	for ref := range d.Objects {
		if ref.Num > max {
			max = ref.Num
		}
	}
	return max
}

// SortedRefs returns all object references in ascending number order.
func (d *Document) SortedRefs() []ObjectRef {
	refs := make([]ObjectRef, 0, len(d.Objects))
	for ref := range d.Objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num == refs[j].Num {
			return refs[i].Gen < refs[j].Gen
		}
		return refs[i].Num < refs[j].Num
	})
	return refs
}
