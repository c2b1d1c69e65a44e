package handlers

import (
	"context"
	"io"
	"regexp"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader"
	"go.nownabe.dev/dwloader/warehouse"
)

// DefaultFilePattern matches every extension dwloader.ParserFor knows.
const DefaultFilePattern = `(?i)\.(csv|tsv|json|jsonl|parquet|xls)$`

// FileColumn picks the Source column of a file into the Name column of the
// destination table.
type FileColumn struct {
	Name   string
	Source string
}

// ParseFileColumns parses arguments such as "amount" or "amount=利用金額".
// Arguments may hold several comma separated columns.
func ParseFileColumns(args []string) ([]FileColumn, error) {
	cols := []FileColumn{}
	seen := map[string]bool{}

	for _, arg := range args {
		for _, s := range strings.Split(arg, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}

			name, source, ok := strings.Cut(s, "=")
			if !ok {
				source = name
			}
			name, source = strings.TrimSpace(name), strings.TrimSpace(source)
			if name == "" || source == "" {
				return nil, xerrors.Errorf("invalid column %q", s)
			}
			if seen[name] {
				return nil, xerrors.Errorf("duplicated column %q", name)
			}
			seen[name] = true

			cols = append(cols, FileColumn{Name: name, Source: source})
		}
	}

	if len(cols) == 0 {
		return nil, xerrors.New("no columns given")
	}

	return cols, nil
}

// LookupEncoding finds a character encoding by a label such as "shift_jis" or
// "latin1". An empty label or UTF-8 means no decoding.
func LookupEncoding(label string) (encoding.Encoding, error) {
	if label == "" {
		return nil, nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, xerrors.Errorf("unknown encoding %q: %w", label, err)
	}

	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return nil, nil
	}

	return enc, nil
}

// FileOptions tunes File.
type FileOptions struct {
	// Encoding decodes sources that are not UTF-8.
	Encoding encoding.Encoding

	// SkipLeadingRows are dropped before the header row.
	SkipLeadingRows int
}

type fileParserKey struct{}

var binaryFile = regexp.MustCompile(`(?i)\.(parquet|xls)$`)

// File builds a handler loading CSV, TSV, JSON, parquet or XLS files into a
// text table. The parser is chosen by the extension of each file, and cols
// are picked from its header by name.
func File(name, pattern, table string, cols []FileColumn, opts FileOptions, n dwloader.Notifier) *dwloader.Handler {
	t := warehouse.Table{Name: table}
	sources := make([]string, len(cols))
	for i, c := range cols {
		t.Columns = append(t.Columns, warehouse.Column{Name: c.Name, Type: warehouse.Text})
		sources[i] = c.Source
	}

	preprocessor := func(ctx context.Context, e dwloader.Event) (context.Context, error) {
		if opts.Encoding != nil && binaryFile.MatchString(e.Name) {
			return ctx, xerrors.Errorf("%s is not a text file, its encoding cannot be converted", e.Name)
		}

		p, err := dwloader.ParserFor(e.Name, sources...)
		if err != nil {
			return ctx, err
		}
		return context.WithValue(ctx, fileParserKey{}, p), nil
	}

	parser := func(ctx context.Context, r io.Reader) ([][]string, error) {
		p, ok := ctx.Value(fileParserKey{}).(dwloader.Parser)
		if !ok {
			return nil, xerrors.New("parser is not chosen")
		}
		return p(ctx, r)
	}

	projector := func(ctx context.Context, r []string) ([]string, error) {
		h, err := header(ctx)
		if err != nil {
			return nil, err
		}
		if err := requireColumns(h, sources...); err != nil {
			return nil, err
		}

		out := make([]string, len(sources))
		for i, s := range sources {
			out[i] = h.Get(r, s)
		}

		return out, nil
	}

	return &dwloader.Handler{
		Name:            name,
		Pattern:         regexp.MustCompile(pattern),
		Encoding:        opts.Encoding,
		SkipLeadingRows: opts.SkipLeadingRows,
		HasHeader:       true,

		Preprocessor: preprocessor,
		Parser:       parser,
		Projector:    projector,
		Notifier:     n,

		Table: t,
	}
}
