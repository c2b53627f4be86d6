package document

import (
	"context"
	"errors"

	"github.com/wudi/privkit/apperr"
	"github.com/wudi/privkit/fileutil"
	"github.com/wudi/privkit/parser"
)

// Input is a named PDF held in memory.
type Input struct {
	Name string
	Data []byte
}

// OpenInput checks the file type and size of in, then opens it. Failures
// are returned as *apperr.Error with a message fit for end users.
func OpenInput(ctx context.Context, in Input, maxSize int64, opts Options) (*Document, error) {
	if v := fileutil.ValidatePDF(in.Name, in.Data, maxSize); !v.IsValid {
		return nil, apperr.Validation("invalid input file", v.Error)
	}
	doc, err := Open(ctx, in.Data, opts)
	if err != nil {
		return nil, ClassifyError(err)
	}
	return doc, nil
}

// ClassifyError maps an error met while reading or rewriting a PDF onto an
// application error. Unrecognized failures count as corruption.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, parser.ErrEncrypted):
		return apperr.Wrap(apperr.KindEncrypted, "the PDF is password protected; remove the password and try again", err)
	case errors.Is(err, parser.ErrNotPDF):
		return apperr.Wrap(apperr.KindValidation, "the file is not a PDF", err)
	}
	ae := apperr.Classify(err)
	if ae.Kind == apperr.KindInternal {
		return apperr.Wrap(apperr.KindCorrupted, "the PDF could not be processed; it may be corrupted", err)
	}
	return ae
}
