package dwloader

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
	"golang.org/x/xerrors"
)

const parquetReadBatch = 1024

// ParquetParser provides a parser for flat parquet files. The first row is the
// header made of column names.
func ParquetParser() Parser {
	return func(ctx context.Context, r io.Reader) ([][]string, error) {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, xerrors.Errorf("failed to read parquet file: %w", err)
		}

		f, err := parquet.OpenFile(bytes.NewReader(b), int64(len(b)))
		if err != nil {
			return nil, xerrors.Errorf("failed to open parquet file: %w", err)
		}

		pr := parquet.NewReader(f)
		defer pr.Close()

		paths := pr.Schema().Columns()
		header := make([]string, len(paths))
		for i, p := range paths {
			header[i] = strings.Join(p, ".")
		}

		records := [][]string{header}
		rows := make([]parquet.Row, parquetReadBatch)

		for {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			n, err := pr.ReadRows(rows)
			for _, row := range rows[:n] {
				record := make([]string, len(header))
				for _, v := range row {
					if c := v.Column(); c >= 0 && c < len(record) {
						record[c] = formatParquetValue(v)
					}
				}
				records = append(records, record)
			}

			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, xerrors.Errorf("failed to read parquet rows: %w", err)
			}
		}

		return records, nil
	}
}

func formatParquetValue(v parquet.Value) string {
	if v.IsNull() {
		return ""
	}

	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'f', -1, 32)
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'f', -1, 64)
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}
