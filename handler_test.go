package dwloader

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/encoding/charmap"
)

func Test_Handler_WithSkipping(t *testing.T) {
	t.Parallel()

	projector := func(_ context.Context, r []string) ([]string, error) {
		if r[0] == "" {
			return nil, nil
		}

		return r, nil
	}

	rawCSV := `123,456,789
,foo bar,123
234,567,890`
	src := bytes.NewBufferString(rawCSV)

	tl := newTestLoader()

	handler := &Handler{
		Name:      "test-handler",
		Parser:    CSVParser(),
		Projector: projector,
		Extractor: newTestExtractor(),
		Loader:    tl,
	}

	e := Event{Name: "test/name", Bucket: "bucket", source: src}

	if err := handler.Handle(context.Background(), e); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := [][]string{
		{"123", "456", "789"},
		{"234", "567", "890"},
	}
	if diff := cmp.Diff(want, tl.records()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func Test_Handler_WithPreprocessor(t *testing.T) {
	t.Parallel()

	type prefixKey struct{}

	projector := func(ctx context.Context, r []string) ([]string, error) {
		prefix, ok := ctx.Value(prefixKey{}).(string)
		if !ok {
			return nil, fmt.Errorf("prefix not found")
		}

		return append([]string{prefix}, r...), nil
	}

	preprocessor := func(ctx context.Context, e Event) (context.Context, error) {
		prefix := strings.Split(e.Name, "/")[0]
		return context.WithValue(ctx, prefixKey{}, prefix), nil
	}

	tl := newTestLoader()

	handler := &Handler{
		Name:         "test-handler",
		Parser:       CSVParser(),
		Projector:    projector,
		Preprocessor: preprocessor,
		Extractor:    newTestExtractor(),
		Loader:       tl,
	}

	e := Event{Name: "test/name", Bucket: "bucket", source: bytes.NewBufferString(`123,456,789`)}

	if err := handler.Handle(context.Background(), e); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := [][]string{{"test", "123", "456", "789"}}
	if diff := cmp.Diff(want, tl.records()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func Test_Handler_WithHeader(t *testing.T) {
	t.Parallel()

	projector := func(ctx context.Context, r []string) ([]string, error) {
		h, ok := HeaderFrom(ctx)
		if !ok {
			return nil, fmt.Errorf("header not found")
		}
		return []string{h.Get(r, "City"), h.Get(r, "State")}, nil
	}

	src := bytes.NewBufferString("exported by someone\nState;City\nOhio;Akron\nTexas;Austin\n")

	tl := newTestLoader()

	handler := &Handler{
		Name:            "demographics",
		Parser:          CSVParserWithComma(';'),
		SkipLeadingRows: 1,
		HasHeader:       true,
		Projector:       projector,
		Extractor:       newTestExtractor(),
		Loader:          tl,
	}

	if err := handler.Handle(context.Background(), Event{Name: "demo.csv", source: src}); err != nil {
		t.Fatal(err)
	}

	want := [][]string{{"Akron", "Ohio"}, {"Austin", "Texas"}}
	if diff := cmp.Diff(want, tl.records()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func Test_Handler_MissingHeader(t *testing.T) {
	t.Parallel()

	handler := &Handler{
		Name:      "empty",
		Parser:    CSVParser(),
		HasHeader: true,
		Extractor: newTestExtractor(),
		Loader:    newTestLoader(),
	}

	if err := handler.Handle(context.Background(), Event{Name: "x.csv", source: bytes.NewBufferString("")}); err == nil {
		t.Error("expected error but no error occurred")
	}
}

func Test_Handler_KeepsOrder(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	want := [][]string{}
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&b, "%d\n", i)
		if i%3 != 0 {
			want = append(want, []string{fmt.Sprintf("row-%d", i)})
		}
	}

	projector := func(_ context.Context, r []string) ([]string, error) {
		var n int
		if _, err := fmt.Sscan(r[0], &n); err != nil {
			return nil, err
		}
		if n%3 == 0 {
			return nil, nil
		}
		return []string{"row-" + r[0]}, nil
	}

	tl := newTestLoader()

	handler := &Handler{
		Name:      "ordered",
		Parser:    CSVParser(),
		Projector: projector,
		BatchSize: 7,
		Extractor: newTestExtractor(),
		Loader:    tl,
	}
	handler.SetConcurrency(16)

	if err := handler.Handle(context.Background(), Event{Name: "n.csv", source: bytes.NewBufferString(b.String())}); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(want, tl.records()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	if want := (len(want) + 6) / 7; tl.calls() != want {
		t.Errorf("expected %d batches, got %d", want, tl.calls())
	}
}

func Test_Handler_WithAggregator(t *testing.T) {
	t.Parallel()

	aggregator := func(_ context.Context, rs [][]string) ([][]string, error) {
		return [][]string{{fmt.Sprint(len(rs))}}, nil
	}

	tl := newTestLoader()

	handler := &Handler{
		Name:       "count",
		Parser:     CSVParser(),
		Aggregator: aggregator,
		Extractor:  newTestExtractor(),
		Loader:     tl,
	}

	if err := handler.Handle(context.Background(), Event{Name: "c.csv", source: bytes.NewBufferString("a\nb\nc\n")}); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([][]string{{"3"}}, tl.records()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func Test_Handler_WithEncoding(t *testing.T) {
	t.Parallel()

	// "Zürich" in ISO-8859-1.
	src := bytes.NewBuffer([]byte{'Z', 0xfc, 'r', 'i', 'c', 'h', ',', '1'})

	tl := newTestLoader()

	handler := &Handler{
		Name:      "latin1",
		Encoding:  charmap.ISO8859_1,
		Parser:    CSVParser(),
		Extractor: newTestExtractor(),
		Loader:    tl,
	}

	if err := handler.Handle(context.Background(), Event{Name: "l.csv", source: src}); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([][]string{{"Zürich", "1"}}, tl.records()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}
