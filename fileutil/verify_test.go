package fileutil_test

import (
	"testing"

	"github.com/wudi/privkit/fileutil"
	"github.com/wudi/privkit/internal/pdftest"
)

func TestVerifyPDF(t *testing.T) {
	if err := fileutil.VerifyPDF(pdftest.Build(t, pdftest.Pages(2), map[string]string{"Title": "ok"})); err != nil {
		t.Fatalf("generated PDF failed validation: %v", err)
	}
	if err := fileutil.VerifyPDF([]byte("%PDF-1.7\nnot really a pdf")); err == nil {
		t.Fatalf("garbage passed validation")
	}
}
