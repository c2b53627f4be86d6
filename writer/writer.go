package writer

import (
	"context"
	"io"

	"github.com/wudi/privkit/ir/raw"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF17 PDFVersion = "1.7"
)

type Config struct {
	// Version overrides the document version in the header when set.
	Version PDFVersion
	// Compress flate-encodes streams that carry no filter.
	Compress bool
	// Level is the zlib level used with Compress; 0 means default.
	Level int
	// Deterministic derives the file /ID from content only, so equal input
	// yields byte-identical output.
	Deterministic bool
}

type Writer interface {
	Write(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

// Interceptor observes objects as they are written.
type Interceptor interface {
	BeforeWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object) error
	AfterWrite(ctx context.Context, ref raw.ObjectRef, bytesWritten int64) error
}

type WriterBuilder struct{ interceptors []Interceptor }

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}

func (b *WriterBuilder) Build() Writer { return &impl{interceptors: b.interceptors} }

// Write serializes doc with a default writer.
func Write(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config) error {
	return (&WriterBuilder{}).Build().Write(ctx, doc, w, cfg)
}
