package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/wudi/privkit/apperr"
	"github.com/wudi/privkit/assemble"
	"github.com/wudi/privkit/document"
	"github.com/wudi/privkit/extractor"
	"github.com/wudi/privkit/fileutil"
	"github.com/wudi/privkit/optimize"
	"github.com/wudi/privkit/redact"
)

func (a *app) readPDF(path string) (document.Input, error) {
	data, err := a.readInput(path)
	if err != nil {
		return document.Input{}, err
	}
	return document.Input{Name: filepath.Base(path), Data: data}, nil
}

// areaList collects repeated -area flags of the form "page:x,y,w,h".
type areaList []redact.Area

func (l *areaList) String() string { return fmt.Sprint(len(*l)) }

func (l *areaList) Set(s string) error {
	page, rect, ok := strings.Cut(s, ":")
	if !ok {
		return fmt.Errorf("want page:x,y,w,h, got %q", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(page))
	if err != nil {
		return fmt.Errorf("bad page in %q", s)
	}
	parts := strings.Split(rect, ",")
	if len(parts) != 4 {
		return fmt.Errorf("want four numbers after the page in %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		if v[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64); err != nil {
			return fmt.Errorf("bad number %q", p)
		}
	}
	*l = append(*l, redact.Area{PageNumber: n, X: v[0], Y: v[1], Width: v[2], Height: v[3]})
	return nil
}

// parseColor reads "#rrggbb" or "r,g,b" with components in 0..1.
func parseColor(s string) ([3]float64, error) {
	var c [3]float64
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		if len(s) != 7 {
			return c, fmt.Errorf("bad color %q", s)
		}
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseUint(s[1+2*i:3+2*i], 16, 8)
			if err != nil {
				return c, fmt.Errorf("bad color %q", s)
			}
			c[i] = float64(v) / 255
		}
		return c, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return c, fmt.Errorf("bad color %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return c, fmt.Errorf("bad color %q", s)
		}
		c[i] = v
	}
	return c, nil
}

func runRedact(ctx context.Context, a *app, args []string) error {
	fs := a.newFlags("redact", "<file.pdf>")
	var areas areaList
	fs.Var(&areas, "area", "Area as page:x,y,width,height in points from the top-left corner (repeatable)")
	areasFile := fs.String("areas", "", "JSON file with an array of {pageNumber,x,y,width,height}")
	flatten := fs.Bool("flatten", false, "Flatten pages so boxes cannot be removed by editing page structure")
	colorFlag := fs.String("color", "#000000", "Box color as #rrggbb or r,g,b in 0..1")
	strip := fs.Bool("strip-metadata", false, "Also remove document metadata")
	out := fs.String("o", "", "Output file (default <name>_redacted.pdf)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return usageErr("expected one PDF file")
	}
	if *areasFile != "" {
		data, err := a.readInput(*areasFile)
		if err != nil {
			return err
		}
		var fromFile []redact.Area
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return apperr.Wrap(apperr.KindValidation, "invalid areas file", err)
		}
		areas = append(areas, fromFile...)
	}
	color, err := parseColor(*colorFlag)
	if err != nil {
		return usageErr("%v", err)
	}
	in, err := a.readPDF(fs.Arg(0))
	if err != nil {
		return err
	}
	res, err := redact.Redact(ctx, in, areas, redact.Options{
		Flatten:       *flatten,
		Color:         color,
		StripMetadata: *strip,
		MaxFileSize:   a.cfg.MaxPDFSize,
		Deterministic: a.cfg.Deterministic,
		Logger:        a.logger,
		Tracker:       a.tracker,
	})
	if err != nil {
		return err
	}
	target := *out
	if target == "" {
		target = fileutil.OutputName(in.Name, "redacted", "")
	}
	if err := a.writeOutput(target, res.Data); err != nil {
		return err
	}
	if target != "-" {
		a.printf("redacted %d area(s) on %d of %d page(s) -> %s\n", res.RedactedCount, res.PagesAffected, res.PageCount, target)
	}
	if n := res.CoveredText + res.CoveredImages; n > 0 {
		fmt.Fprintf(a.stderr, "note: %d text and %d image operation(s) under the boxes remain in the file and can still be extracted\n",
			res.CoveredText, res.CoveredImages)
	}
	return nil
}

func (a *app) assembler() *assemble.Assembler {
	return assemble.New(assemble.Config{
		MaxFileSize:   a.cfg.MaxPDFSize,
		Compress:      true,
		Deterministic: a.cfg.Deterministic,
		Logger:        a.logger,
		Tracker:       a.tracker,
	})
}

func runMerge(ctx context.Context, a *app, args []string) error {
	fs := a.newFlags("merge", "<a.pdf> <b.pdf> ...")
	out := fs.String("o", "merged.pdf", "Output file")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		fs.Usage()
		return usageErr("merge needs at least two PDF files")
	}
	inputs := make([]assemble.Input, 0, fs.NArg())
	for _, path := range fs.Args() {
		in, err := a.readPDF(path)
		if err != nil {
			return err
		}
		inputs = append(inputs, in)
	}
	data, err := a.assembler().Merge(ctx, inputs)
	if err != nil {
		return err
	}
	return a.writeOutput(*out, data)
}

func runSplit(ctx context.Context, a *app, args []string) error {
	fs := a.newFlags("split", "<file.pdf>")
	ranges := fs.String("ranges", "", `Page ranges such as "1-3,5,8-"; one output per range`)
	pages := fs.String("pages", "", `Pages to copy into a single output, in order, such as "4,1,2"`)
	outDir := fs.String("dir", ".", "Output directory")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return usageErr("expected one PDF file")
	}
	if *ranges != "" && *pages != "" {
		return usageErr("-ranges and -pages are mutually exclusive")
	}
	in, err := a.readPDF(fs.Arg(0))
	if err != nil {
		return err
	}
	asm := a.assembler()

	if *pages != "" {
		var list []int
		for _, p := range strings.Split(*pages, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return usageErr("bad page %q", p)
			}
			list = append(list, n)
		}
		data, err := asm.ExtractPages(ctx, in, list)
		if err != nil {
			return err
		}
		return a.writeOutput(filepath.Join(*outDir, fileutil.OutputName(in.Name, "pages", "")), data)
	}

	var parts [][]byte
	var names []string
	if *ranges == "" {
		if parts, err = asm.SplitEach(ctx, in); err != nil {
			return err
		}
		for i := range parts {
			names = append(names, fileutil.OutputName(in.Name, fmt.Sprintf("page%d", i+1), ""))
		}
	} else {
		doc, err := document.OpenInput(ctx, in, a.cfg.MaxPDFSize, document.Options{Logger: a.logger})
		if err != nil {
			return err
		}
		rs, err := assemble.ParseRanges(*ranges, doc.PageCount())
		if err != nil {
			return err
		}
		if parts, err = asm.Split(ctx, in, rs); err != nil {
			return err
		}
		for _, r := range rs {
			names = append(names, fileutil.OutputName(in.Name, "pages_"+r.String(), ""))
		}
	}
	for i, data := range parts {
		if err := a.writeOutput(filepath.Join(*outDir, names[i]), data); err != nil {
			return err
		}
	}
	a.printf("wrote %d file(s) to %s\n", len(parts), *outDir)
	return nil
}

func runCompress(ctx context.Context, a *app, args []string) error {
	fs := a.newFlags("compress", "<file.pdf>")
	def := optimize.DefaultConfig()
	quality := fs.Int("quality", def.ImageQuality, "JPEG quality for embedded images, 0 keeps images as they are")
	maxDim := fs.Int("max-dimension", def.MaxImageDimension, "Longest side of re-encoded images in pixels, 0 keeps the size")
	strip := fs.Bool("strip-metadata", false, "Also remove document metadata")
	out := fs.String("o", "", "Output file (default <name>_compressed.pdf)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return usageErr("expected one PDF file")
	}
	in, err := a.readPDF(fs.Arg(0))
	if err != nil {
		return err
	}
	cfg := def
	cfg.ImageQuality = *quality
	cfg.MaxImageDimension = *maxDim
	cfg.StripMetadata = *strip
	cfg.MaxFileSize = a.cfg.MaxPDFSize
	cfg.Deterministic = a.cfg.Deterministic
	cfg.Logger = a.logger
	cfg.Tracker = a.tracker
	res, err := optimize.Compress(ctx, in, cfg)
	if err != nil {
		return err
	}
	target := *out
	if target == "" {
		target = fileutil.OutputName(in.Name, "compressed", "")
	}
	if err := a.writeOutput(target, res.Data); err != nil {
		return err
	}
	if target != "-" {
		if res.Unchanged {
			a.printf("already optimal, %s kept as is -> %s\n", fileutil.FormatFileSize(res.OriginalSize), target)
		} else {
			a.printf("%s -> %s (%.1f%% smaller) -> %s\n",
				fileutil.FormatFileSize(res.OriginalSize), fileutil.FormatFileSize(res.CompressedSize), res.Savings(), target)
		}
	}
	return nil
}

// stripPDF removes document metadata and nothing else.
func (a *app) stripPDF(ctx context.Context, in document.Input) ([]byte, error) {
	res, err := optimize.Compress(ctx, in, optimize.Config{
		RemoveUnused:  true,
		StripMetadata: true,
		MaxFileSize:   a.cfg.MaxPDFSize,
		Deterministic: a.cfg.Deterministic,
		Logger:        a.logger,
		Tracker:       a.tracker,
	})
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

func runText(ctx context.Context, a *app, args []string) error {
	fs := a.newFlags("text", "<file.pdf>")
	perPage := fs.Bool("pages", false, "Prefix each page with a header line")
	out := fs.String("o", "-", "Output file")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return usageErr("expected one PDF file")
	}
	in, err := a.readPDF(fs.Arg(0))
	if err != nil {
		return err
	}
	ext := extractor.New(extractor.Config{MaxFileSize: a.cfg.MaxPDFSize, Logger: a.logger, Tracker: a.tracker})
	pages, err := ext.ExtractText(ctx, in.Name, in.Data)
	if err != nil {
		return err
	}
	var text string
	if *perPage {
		var b strings.Builder
		for _, p := range pages {
			fmt.Fprintf(&b, "--- page %d ---\n%s\n\n", p.Page, p.Text)
		}
		text = b.String()
	} else {
		text = extractor.PlainText(pages) + "\n"
	}
	return a.writeOutput(*out, []byte(text))
}

func runInfo(ctx context.Context, a *app, args []string) error {
	fs := a.newFlags("info", "<file.pdf>")
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return usageErr("expected one PDF file")
	}
	in, err := a.readPDF(fs.Arg(0))
	if err != nil {
		return err
	}
	doc, err := document.OpenInput(ctx, in, a.cfg.MaxPDFSize, document.Options{Logger: a.logger})
	if err != nil {
		return err
	}
	meta, err := extractor.ExtractMetadata(ctx, doc)
	if err != nil {
		return document.ClassifyError(err)
	}
	if *asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}
	a.printf("File:     %s (%s)\n", in.Name, fileutil.FormatFileSize(int64(len(in.Data))))
	a.printf("Version:  %s\n", meta.Version)
	a.printf("Pages:    %d\n", meta.PageCount)
	for _, k := range sortedKeys(meta.Info) {
		a.printf("%-9s %s\n", k+":", meta.Info[k])
	}
	if len(meta.XMP) > 0 {
		a.printf("XMP:      %s\n", fileutil.FormatFileSize(int64(len(meta.XMP))))
	}
	if meta.PageMetadata > 0 {
		a.printf("Page metadata on %d page(s)\n", meta.PageMetadata)
	}
	if meta.GeoPages > 0 {
		a.printf("Geo:      %d page(s) registered", meta.GeoPages)
		if meta.Location != nil {
			a.printf(" near %.5f, %.5f", meta.Location.Lat, meta.Location.Lon)
		}
		a.printf("\n")
	}
	for _, p := range meta.Pages {
		a.printf("  page %d: %s x %s pt", p.Number, trimFloat(p.Width), trimFloat(p.Height))
		if p.Rotate != 0 {
			a.printf(", rotated %d", p.Rotate)
		}
		a.printf("\n")
	}
	return nil
}

func runVerify(_ context.Context, a *app, args []string) error {
	fs := a.newFlags("verify", "<file.pdf> ...")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return usageErr("expected at least one PDF file")
	}
	var failed int
	for _, path := range fs.Args() {
		in, err := a.readPDF(path)
		if err != nil {
			return err
		}
		if v := fileutil.ValidatePDF(in.Name, in.Data, a.cfg.MaxPDFSize); !v.IsValid {
			a.printf("%s: invalid: %s\n", path, v.Error)
			failed++
			continue
		}
		if err := fileutil.VerifyPDF(in.Data); err != nil {
			a.printf("%s: invalid: %v\n", path, err)
			failed++
			continue
		}
		a.printf("%s: ok\n", path)
	}
	if failed > 0 {
		return apperr.Validation("verification failed", fmt.Sprintf("%d of %d file(s)", failed, fs.NArg()))
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func trimFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

var _ flag.Value = (*areaList)(nil)
