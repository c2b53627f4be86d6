package fileutil

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// Keep pdfcpu from creating a configuration directory under $HOME.
	api.DisableConfigDir()
}

// VerifyPDF runs pdfcpu's relaxed structural validation over data. It is
// an independent check that a PDF produced by privkit opens in other
// readers.
func VerifyPDF(data []byte) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return fmt.Errorf("pdf validation: %w", err)
	}
	return nil
}
