package optimize

import (
	"golang.org/x/crypto/blake2b"

	"github.com/wudi/privkit/ir/raw"
	"github.com/wudi/privkit/writer"
)

var serializer = (&writer.WriterBuilder{}).Build()

// digest is the blake2b-256 sum of obj as the writer would emit it. The
// writer sorts dictionary keys, so equal objects hash equally.
func digest(obj raw.Object) ([blake2b.Size256]byte, error) {
	b, err := serializer.SerializeObject(raw.ObjectRef{}, obj)
	if err != nil {
		return [blake2b.Size256]byte{}, err
	}
	return blake2b.Sum256(b), nil
}
