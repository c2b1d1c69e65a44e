package dwloader

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"path"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Parser parses files from storage.
type Parser func(context.Context, io.Reader) ([][]string, error)

// CSVParser provides a parser to parse CSV files.
func CSVParser() Parser {
	return CSVParserWithComma(',')
}

// CSVParserWithComma provides a parser for files separated by comma, such as
// ';' or '\t'.
func CSVParserWithComma(comma rune) Parser {
	return func(_ context.Context, r io.Reader) ([][]string, error) {
		cr := csv.NewReader(r)
		cr.Comma = comma
		cr.FieldsPerRecord = -1

		records, err := cr.ReadAll()
		if err != nil {
			return nil, xerrors.Errorf("failed to read csv: %w", err)
		}

		return records, nil
	}
}

// JSONParser provides a parser for a JSON object or a stream of objects such
// as JSON lines. Each object becomes a row holding the given top-level fields
// in order. Missing fields and nulls become empty cells.
func JSONParser(columns ...string) Parser {
	return func(ctx context.Context, r io.Reader) ([][]string, error) {
		dec := json.NewDecoder(r)
		dec.UseNumber()

		records := [][]string{}

		for {
			var obj map[string]any
			err := dec.Decode(&obj)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, xerrors.Errorf("failed to decode json object %d: %w", len(records), err)
			}

			record := make([]string, len(columns))
			for i, c := range columns {
				cell, err := jsonCell(obj[c])
				if err != nil {
					return nil, xerrors.Errorf("failed to format field %s: %w", c, err)
				}
				record[i] = cell
			}

			records = append(records, record)
		}

		return records, nil
	}
}

func jsonCell(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// ParserFor picks a parser by the extension of name. Every parser yields a
// header row first; for JSON files it is columns, which also select the
// fields.
func ParserFor(name string, columns ...string) (Parser, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return CSVParser(), nil
	case ".tsv":
		return CSVParserWithComma('\t'), nil
	case ".json", ".jsonl":
		return withHeaderRow(JSONParser(columns...), columns), nil
	case ".parquet":
		return ParquetParser(), nil
	case ".xls":
		return XLSParser(0), nil
	default:
		return nil, xerrors.Errorf("no parser for %s", name)
	}
}

func withHeaderRow(p Parser, header []string) Parser {
	return func(ctx context.Context, r io.Reader) ([][]string, error) {
		records, err := p(ctx, r)
		if err != nil {
			return nil, err
		}
		return append([][]string{append([]string{}, header...)}, records...), nil
	}
}
