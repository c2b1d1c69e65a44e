package handlers_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/encoding/japanese"

	"go.nownabe.dev/dwloader"
	"go.nownabe.dev/dwloader/contrib/handlers"
)

func fileColumns(t *testing.T, specs ...string) []handlers.FileColumn {
	t.Helper()

	cols, err := handlers.ParseFileColumns(specs)
	if err != nil {
		t.Fatal(err)
	}
	return cols
}

func Test_File_XLS(t *testing.T) {
	t.Parallel()

	cols := fileColumns(t, "code=Code,description=Description")
	h := handlers.File("codes", handlers.DefaultFilePattern, "codes", cols, handlers.FileOptions{}, nil)

	actual := runTestHandler(t, h, readTestFile(t, "table.xls"), "path_to/table.xls")

	if len(actual) != 11 {
		t.Fatalf("expected 11 rows but %d: %v", len(actual), actual)
	}
	assertEqual(t, [][]string{{"code1", "description1"}}, actual[:1])
	assertEqual(t, [][]string{{"code11", "description11"}}, actual[10:])

	if diff := cmp.Diff([]string{"code", "description"}, h.Table.ColumnNames()); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
}

func Test_File_ShiftJIS(t *testing.T) {
	t.Parallel()

	src, err := japanese.ShiftJIS.NewEncoder().String("ご利用明細\n利用日,利用店名,利用金額\n2022/06/19,グーグル,1760\n2022/05/29,アマゾン,129\n")
	if err != nil {
		t.Fatal(err)
	}

	enc, err := handlers.LookupEncoding("shift_jis")
	if err != nil {
		t.Fatal(err)
	}

	cols := fileColumns(t, "date=利用日", "amount=利用金額", "shop=利用店名")
	h := handlers.File("statement", handlers.DefaultFilePattern, "statements", cols, handlers.FileOptions{Encoding: enc, SkipLeadingRows: 1}, nil)

	actual := runTestHandler(t, h, []byte(src), "statements/2022-07.CSV")

	expected := [][]string{
		{"2022/06/19", "1760", "グーグル"},
		{"2022/05/29", "129", "アマゾン"},
	}
	assertEqual(t, expected, actual)
}

func Test_File_JSON(t *testing.T) {
	t.Parallel()

	cols := fileColumns(t, "user_id=userId,page")
	h := handlers.File("events", handlers.DefaultFilePattern, "events", cols, handlers.FileOptions{}, nil)

	actual := runTestHandler(t, h, readTestFile(t, "log_data.json"), "log_data/2018/11/2018-11-01-events.json")
	if len(actual) == 0 {
		t.Fatal("no rows loaded")
	}
	for _, r := range actual {
		if len(r) != 2 || r[1] == "" {
			t.Errorf("unexpected row: %v", r)
		}
	}
}

func Test_File_errors(t *testing.T) {
	t.Parallel()

	enc, err := handlers.LookupEncoding("shift_jis")
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		cols []handlers.FileColumn
		opts handlers.FileOptions
		body []byte
		file string
	}{
		{
			name: "missing column",
			cols: []handlers.FileColumn{{Name: "amount", Source: "Amount"}},
			body: []byte("Code,Name\nA,B\n"),
			file: "a.csv",
		},
		{
			name: "encoding of binary file",
			cols: []handlers.FileColumn{{Name: "code", Source: "Code"}},
			opts: handlers.FileOptions{Encoding: enc},
			body: readTestFile(t, "table.xls"),
			file: "table.xls",
		},
		{
			name: "unknown extension",
			cols: []handlers.FileColumn{{Name: "code", Source: "Code"}},
			body: []byte("Code\nA\n"),
			file: "a.txt",
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			h := handlers.File("file", `.*`, "t", c.cols, c.opts, nil)
			h.Loader = &testLoader{}
			h.Extractor = &testExtractor{source: bytes.NewReader(c.body)}

			if err := h.Handle(context.Background(), dwloader.Event{Name: c.file, Bucket: "bucket"}); err == nil {
				t.Error("Expected error didn't occur")
			}
		})
	}
}

func TestParseFileColumns(t *testing.T) {
	t.Parallel()

	actual, err := handlers.ParseFileColumns([]string{"date=利用日, amount", "shop = 利用店名"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := []handlers.FileColumn{
		{Name: "date", Source: "利用日"},
		{Name: "amount", Source: "amount"},
		{Name: "shop", Source: "利用店名"},
	}
	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}

	for _, specs := range [][]string{nil, {""}, {"=x"}, {"a=,b"}, {"a,a=b"}} {
		if _, err := handlers.ParseFileColumns(specs); err == nil {
			t.Errorf("expected error for %q", specs)
		}
	}
}

func TestLookupEncoding(t *testing.T) {
	t.Parallel()

	for _, label := range []string{"", "utf-8", "UTF8"} {
		enc, err := handlers.LookupEncoding(label)
		if err != nil || enc != nil {
			t.Errorf("%q should mean no decoding, but %v, %v", label, enc, err)
		}
	}

	for _, label := range []string{"shift_jis", "latin1", "euc-jp"} {
		enc, err := handlers.LookupEncoding(label)
		if err != nil || enc == nil {
			t.Errorf("%q should be found, but %v, %v", label, enc, err)
		}
	}

	if _, err := handlers.LookupEncoding("klingon"); err == nil {
		t.Error("Expected error didn't occur")
	}
}
