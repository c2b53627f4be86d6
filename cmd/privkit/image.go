package main

import (
	"context"
	"errors"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/wudi/privkit/apperr"
	"github.com/wudi/privkit/document"
	"github.com/wudi/privkit/fileutil"
	"github.com/wudi/privkit/imageconv"
	"github.com/wudi/privkit/imagemeta"
	"github.com/wudi/privkit/observability"
)

// imageError gives imagemeta failures an application error kind.
func imageError(name string, err error) error {
	if errors.Is(err, imagemeta.ErrUnsupportedFormat) {
		return &apperr.Error{Kind: apperr.KindUnsupported, Message: "only JPEG, PNG and PDF metadata can be stripped", Details: name, Cause: err}
	}
	return &apperr.Error{Kind: apperr.KindCorrupted, Message: "the image could not be read; it may be corrupted", Details: name, Cause: err}
}

func runStrip(ctx context.Context, a *app, args []string) error {
	fs := a.newFlags("strip", "<file> ...")
	all := fs.Bool("all", false, "Also drop JPEG ICC profiles and Adobe color markers")
	dryRun := fs.Bool("n", false, "Only report what would be removed")
	out := fs.String("o", "", "Output file when a single input is given (default <name>_clean.<ext>)")
	dir := fs.String("dir", ".", "Output directory for multiple inputs")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return usageErr("expected at least one file")
	}
	if *out != "" && fs.NArg() > 1 {
		return usageErr("-o needs exactly one input")
	}
	var opts []imagemeta.JPEGOption
	if *all {
		opts = append(opts, imagemeta.WithDropAllMetadata())
	}

	for _, path := range fs.Args() {
		data, err := a.readInput(path)
		if err != nil {
			return err
		}
		name := filepath.Base(path)
		var stripped []byte
		if fileutil.IsPDF(name, data) {
			if *dryRun {
				a.printf("%s: PDF document metadata would be removed\n", path)
				continue
			}
			if stripped, err = a.stripPDF(ctx, document.Input{Name: name, Data: data}); err != nil {
				return err
			}
		} else {
			if v := fileutil.ValidateImage(name, data, a.cfg.MaxImageSize); !v.IsValid {
				return apperr.Validation("invalid input file", v.Error)
			}
			if *dryRun {
				report, err := imagemeta.Inspect(data, opts...)
				if err != nil {
					return imageError(name, err)
				}
				a.printf("%s: %s, remove [%s], keep [%s]\n", path, report.Format,
					strings.Join(report.Removed, " "), strings.Join(report.Kept, " "))
				continue
			}
			var format imagemeta.Format
			if stripped, format, err = imagemeta.Strip(data, opts...); err != nil {
				return imageError(name, err)
			}
			a.logger.Debug("image metadata stripped",
				observability.String("file", name),
				observability.Int("removed_bytes", len(data)-len(stripped)))
			observability.SafeTrack(ctx, a.tracker, observability.EventImageStripped, map[string]interface{}{
				"format": format.String(), "original_size": len(data), "stripped_size": len(stripped),
			})
		}
		target := *out
		if target == "" {
			target = filepath.Join(*dir, fileutil.OutputName(name, "clean", ""))
		}
		if err := a.writeOutput(target, stripped); err != nil {
			return err
		}
		if target != "-" {
			a.printf("%s -> %s (%s removed)\n", path, target, fileutil.FormatFileSize(int64(len(data)-len(stripped))))
		}
	}
	return nil
}

func runConvert(ctx context.Context, a *app, args []string) error {
	fs := a.newFlags("convert", "<image> ...")
	to := fs.String("to", "", "Target format: jpeg, png, gif, bmp or tiff")
	quality := fs.Int("quality", a.cfg.JPEGQuality, "JPEG quality 1-100")
	maxW := fs.Int("max-width", 0, "Shrink to at most this width")
	maxH := fs.Int("max-height", 0, "Shrink to at most this height")
	bg := fs.String("background", "#ffffff", "Fill for transparent areas in formats without alpha")
	dir := fs.String("dir", ".", "Output directory")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 || *to == "" {
		fs.Usage()
		return usageErr("expected -to and at least one image")
	}
	format, err := imageconv.ParseFormat(*to)
	if err != nil {
		return err
	}
	fill, err := parseColor(*bg)
	if err != nil {
		return usageErr("%v", err)
	}
	inputs := make([]imageconv.Input, 0, fs.NArg())
	for _, path := range fs.Args() {
		data, err := a.readInput(path)
		if err != nil {
			return err
		}
		name := filepath.Base(path)
		if v := fileutil.ValidateImage(name, data, a.cfg.MaxImageSize); !v.IsValid {
			return apperr.Validation("invalid input file", v.Error)
		}
		inputs = append(inputs, imageconv.Input{Name: name, Data: data})
	}
	outputs, err := imageconv.ConvertAll(ctx, inputs, imageconv.Options{
		Format:     format,
		Quality:    *quality,
		MaxWidth:   *maxW,
		MaxHeight:  *maxH,
		Background: color.NRGBA{R: uint8(fill[0]*255 + 0.5), G: uint8(fill[1]*255 + 0.5), B: uint8(fill[2]*255 + 0.5), A: 255},
	}, a.cfg.Workers)
	if err != nil {
		return err
	}
	for i, o := range outputs {
		target := filepath.Join(*dir, o.Name)
		if filepath.Clean(target) == filepath.Clean(fs.Arg(i)) {
			target = filepath.Join(*dir, fileutil.OutputName(o.Name, "converted", ""))
		}
		if err := a.writeOutput(target, o.Data); err != nil {
			return err
		}
		observability.SafeTrack(ctx, a.tracker, observability.EventImageConverted, map[string]interface{}{
			"format": format.String(), "original_size": len(inputs[i].Data), "converted_size": len(o.Data),
		})
		a.printf("%s -> %s\n", fs.Arg(i), target)
	}
	return nil
}

func runImg2PDF(ctx context.Context, a *app, args []string) error {
	fs := a.newFlags("img2pdf", "<image> ...")
	size := fs.String("size", "a4", "Page size: a4, letter or fit")
	margin := fs.Float64("margin", 0, "Margin in points on every side")
	out := fs.String("o", "images.pdf", "Output file")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return usageErr("expected at least one image")
	}
	pageSize, err := imageconv.ParsePageSize(*size)
	if err != nil {
		return err
	}
	images := make([][]byte, 0, fs.NArg())
	for _, path := range fs.Args() {
		data, err := a.readInput(path)
		if err != nil {
			return err
		}
		if v := fileutil.ValidateImage(filepath.Base(path), data, a.cfg.MaxImageSize); !v.IsValid {
			return apperr.Validation("invalid input file", v.Error)
		}
		images = append(images, data)
	}
	data, err := imageconv.ToPDF(ctx, images, imageconv.PageOptions{
		Size:          pageSize,
		Margin:        *margin,
		Deterministic: a.cfg.Deterministic,
	})
	if err != nil {
		return err
	}
	if err := a.writeOutput(*out, data); err != nil {
		return err
	}
	a.printf("%d image(s) -> %s\n", len(images), *out)
	return nil
}
