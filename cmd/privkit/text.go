package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"

	"github.com/wudi/privkit/apperr"
	"github.com/wudi/privkit/codec"
	"github.com/wudi/privkit/formatter"
	"github.com/wudi/privkit/observability"
	"github.com/wudi/privkit/textlist"
)

func (a *app) trackText(ctx context.Context, tool string, size int) {
	observability.SafeTrack(ctx, a.tracker, observability.EventTextProcessed, map[string]interface{}{
		"tool": tool, "input_size": size,
	})
}

func runBase64(ctx context.Context, a *app, args []string) error {
	fs := a.newFlags("base64", "[text]")
	decode := fs.Bool("d", false, "Decode instead of encode")
	urlSafe := fs.Bool("url", false, "Use the URL-safe alphabet without padding")
	file := fs.String("file", "", "Read input from a file instead of the arguments or stdin")
	dataURL := fs.String("data-url", "", "Encode as a data URL with this MIME type; with -d, parse a data URL")
	out := fs.String("o", "-", "Output file")
	if err := parse(fs, args); err != nil {
		return err
	}
	variant := codec.Standard
	if *urlSafe {
		variant = codec.URLSafe
	}
	input, err := a.readText(fs, *file)
	if err != nil {
		return err
	}
	defer a.trackText(ctx, "base64", len(input))

	switch {
	case *decode && *dataURL != "":
		mime, data, err := codec.ParseDataURL(strings.TrimSpace(input))
		if err != nil {
			return err
		}
		a.logger.Info("decoded data URL", observability.String("mime", mime), observability.Int("bytes", len(data)))
		return a.writeOutput(*out, data)
	case *decode:
		data, err := codec.DecodeBytes(input, variant)
		if err != nil {
			return err
		}
		return a.writeOutput(*out, data)
	case *dataURL != "":
		return a.writeOutput(*out, []byte(codec.DataURL(*dataURL, []byte(input))+"\n"))
	}
	return a.writeOutput(*out, []byte(codec.EncodeBytes([]byte(input), variant)+"\n"))
}

// kindFromName guesses the data format from a file extension.
func kindFromName(name string) (formatter.Kind, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return formatter.JSON, true
	case ".yaml", ".yml":
		return formatter.YAML, true
	case ".xml":
		return formatter.XML, true
	}
	return 0, false
}

func runFormat(ctx context.Context, a *app, args []string) error {
	fs := a.newFlags("format", "[text]")
	typ := fs.String("type", "", "Input format: json, yaml or xml (default from the file extension)")
	indent := fs.Int("indent", formatter.DefaultIndent, "Spaces per indentation level")
	minify := fs.Bool("minify", false, "Remove insignificant whitespace")
	validate := fs.Bool("validate", false, "Only check syntax")
	to := fs.String("to", "", "Convert to another format (json or yaml)")
	file := fs.String("file", "", "Read input from a file")
	out := fs.String("o", "-", "Output file")
	if err := parse(fs, args); err != nil {
		return err
	}
	var kind formatter.Kind
	switch {
	case *typ != "":
		k, err := formatter.ParseKind(*typ)
		if err != nil {
			return err
		}
		kind = k
	default:
		k, ok := kindFromName(*file)
		if !ok {
			return usageErr("cannot tell the format; pass -type")
		}
		kind = k
	}
	input, err := a.readText(fs, *file)
	if err != nil {
		return err
	}
	defer a.trackText(ctx, "format_"+kind.String(), len(input))

	if *validate {
		v := formatter.Validate(input, kind)
		if v.IsValid {
			a.printf("valid %s\n", kind)
			return nil
		}
		details := v.Error
		if v.Line > 0 {
			details = fmt.Sprintf("line %d: %s", v.Line, v.Error)
		}
		return apperr.Validation("invalid "+kind.String(), details)
	}

	var result string
	switch {
	case *to != "":
		target, err := formatter.ParseKind(*to)
		if err != nil {
			return err
		}
		result, err = formatter.Convert(input, kind, target)
		if err != nil {
			return err
		}
	case *minify:
		if result, err = formatter.Minify(input, kind); err != nil {
			return err
		}
	default:
		if result, err = formatter.Format(input, kind, *indent); err != nil {
			return err
		}
	}
	if !strings.HasSuffix(result, "\n") {
		result += "\n"
	}
	return a.writeOutput(*out, []byte(result))
}

func runLines(ctx context.Context, a *app, args []string) error {
	fs := a.newFlags("lines", "[file]")
	trim := fs.Bool("trim", false, "Trim whitespace around each line")
	removeEmpty := fs.Bool("remove-empty", false, "Drop blank lines")
	dedupe := fs.Bool("dedupe", false, "Keep the first occurrence of each line")
	ignoreCase := fs.Bool("ignore-case", false, "Compare case-insensitively when deduplicating and sorting")
	sortOrder := fs.String("sort", "", "Sort asc or desc")
	numeric := fs.Bool("numeric", false, "Sort by leading number")
	locale := fs.String("locale", "", "BCP 47 language for sorting and case rules, such as de or tr")
	caseFlag := fs.String("case", "", "Convert case: upper, lower, title or sentence")
	reverse := fs.Bool("reverse", false, "Reverse line order")
	prefix := fs.String("prefix", "", "Text to add before each line")
	suffix := fs.String("suffix", "", "Text to add after each line")
	number := fs.Bool("number", false, "Number lines starting at 1")
	stats := fs.Bool("stats", false, "Print statistics instead of the lines")
	out := fs.String("o", "-", "Output file")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return usageErr("expected at most one input file")
	}
	lang := language.Und
	if *locale != "" {
		tag, err := language.Parse(*locale)
		if err != nil {
			return usageErr("bad locale %q", *locale)
		}
		lang = tag
	}
	data, err := a.readInput(fs.Arg(0))
	if err != nil {
		return err
	}
	defer a.trackText(ctx, "lines", len(data))
	lines := textlist.Split(string(data))

	if *stats {
		st := textlist.ComputeStats(lines)
		a.printf("lines:      %d\nnon-empty:  %d\nunique:     %d\nduplicates: %d\nwords:      %d\ncharacters: %d\n",
			st.Total, st.NonEmpty, st.Unique, st.Duplicates, st.Words, st.Characters)
		return nil
	}
	if *trim {
		lines = textlist.Trim(lines)
	}
	if *removeEmpty {
		lines = textlist.RemoveEmpty(lines)
	}
	if *dedupe {
		lines = textlist.Deduplicate(lines, textlist.DedupeOptions{IgnoreCase: *ignoreCase, Normalize: true})
	}
	switch *sortOrder {
	case "":
	case "asc", "desc":
		lines = textlist.Sort(lines, textlist.SortOptions{
			Descending: *sortOrder == "desc",
			IgnoreCase: *ignoreCase,
			Numeric:    *numeric,
			Locale:     lang,
		})
	default:
		return usageErr("-sort must be asc or desc")
	}
	if *reverse {
		lines = textlist.Reverse(lines)
	}
	if *caseFlag != "" {
		c, err := textlist.ParseCase(*caseFlag)
		if err != nil {
			return err
		}
		lines = textlist.ConvertCase(lines, c, lang)
	}
	if *prefix != "" || *suffix != "" {
		lines = textlist.AddPrefixSuffix(lines, *prefix, *suffix)
	}
	if *number {
		lines = textlist.Number(lines, 1, ". ")
	}
	result := textlist.Join(lines)
	if len(lines) > 0 {
		result += "\n"
	}
	return a.writeOutput(*out, []byte(result))
}

func runMarkdown(ctx context.Context, a *app, args []string) error {
	fs := a.newFlags("md2html", "[file]")
	out := fs.String("o", "-", "Output file")
	if err := parse(fs, args); err != nil {
		return err
	}
	data, err := a.readInput(fs.Arg(0))
	if err != nil {
		return err
	}
	defer a.trackText(ctx, "markdown", len(data))
	html, err := formatter.MarkdownToHTML(string(data))
	if err != nil {
		return err
	}
	return a.writeOutput(*out, []byte(html))
}

func runHTMLToText(ctx context.Context, a *app, args []string) error {
	fs := a.newFlags("html2text", "[file]")
	out := fs.String("o", "-", "Output file")
	if err := parse(fs, args); err != nil {
		return err
	}
	data, err := a.readInput(fs.Arg(0))
	if err != nil {
		return err
	}
	defer a.trackText(ctx, "html_to_text", len(data))
	text, err := formatter.HTMLToText(string(data))
	if err != nil {
		return err
	}
	return a.writeOutput(*out, []byte(text+"\n"))
}
