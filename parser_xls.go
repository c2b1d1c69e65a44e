package dwloader

import (
	"context"
	"io"

	"github.com/extrame/xls"
	"gitlab.com/osaki-lab/iowrapper"
	"golang.org/x/xerrors"
)

// XLSParser provides a parser for the given sheet of legacy Excel files.
// Cells are placed at their column index so rows line up with the header.
// Rows without any value are dropped.
func XLSParser(sheet int) Parser {
	return func(_ context.Context, r io.Reader) (records [][]string, err error) {
		// The xls reader panics on malformed workbooks.
		defer func() {
			if p := recover(); p != nil {
				records, err = nil, xerrors.Errorf("broken xls file: %v", p)
			}
		}()

		wb, err := xls.OpenReader(iowrapper.NewSeeker(r), "utf-8")
		if err != nil {
			return nil, xerrors.Errorf("failed to open xls file: %w", err)
		}

		ws := wb.GetSheet(sheet)
		if ws == nil {
			return nil, xerrors.Errorf("sheet %d not found in %d sheets", sheet, wb.NumSheets())
		}

		records = [][]string{}
		for i := 0; i <= int(ws.MaxRow); i++ {
			if record := xlsRow(ws, i); record != nil {
				records = append(records, record)
			}
		}

		return records, nil
	}
}

// xlsRow returns the cells of row i or nil when the row is absent or blank.
func xlsRow(ws *xls.WorkSheet, i int) (record []string) {
	// WorkSheet.Row dereferences absent rows.
	defer func() {
		if recover() != nil {
			record = nil
		}
	}()

	row := ws.Row(i)
	if row == nil || row.LastCol() <= 0 {
		return nil
	}

	record = make([]string, row.LastCol())
	blank := true
	for c := row.FirstCol(); c < row.LastCol(); c++ {
		record[c] = row.Col(c)
		if record[c] != "" {
			blank = false
		}
	}
	if blank {
		return nil
	}

	return record
}
