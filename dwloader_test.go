package dwloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func TestLoader(t *testing.T) {
	t.Parallel()

	projector := func(_ context.Context, r []string) ([]string, error) {
		t, err := time.Parse("2006/01/02", r[0])
		if err != nil {
			return nil, fmt.Errorf("Failed to parse date: %v", err)
		}

		r[0] = t.Format("2006-01-02")

		return r, nil
	}

	tl := newTestLoader()
	tn := newTestNotifier()

	handler := &Handler{
		Name:      "test-handler",
		Pattern:   regexp.MustCompile("^test/"),
		Parser:    CSVParser(),
		Notifier:  tn,
		Projector: projector,
		Extractor: newTestExtractor(),
		Loader:    tl,
	}

	ctx := context.Background()

	loader, err := New(WithLogger(zerolog.Nop()), WithLogLevel("debug"), WithConcurrency(4))
	if err != nil {
		t.Fatal(err)
	}
	loader.MustAddHandler(ctx, handler)

	src := bytes.NewBufferString("2020/11/21,foo,123")
	e := Event{Name: "test/name", Bucket: "bucket", source: src}

	if err := loader.Handle(ctx, e); err != nil {
		t.Fatal(err)
	}

	want := [][]string{{"2020-11-21", "foo", "123"}}
	if diff := cmp.Diff(want, tl.records()); diff != "" {
		t.Errorf("loaded records mismatch (-want +got):\n%s", diff)
	}

	if len(tn.results) != 1 || tn.results[0].Error != nil {
		t.Errorf("expected one successful result, got %+v", tn.results)
	}
}

func TestLoader_error(t *testing.T) {
	t.Parallel()

	projector := func(_ context.Context, r []string) ([]string, error) {
		return nil, fmt.Errorf("projector error")
	}

	tn := newTestNotifier()

	handler := &Handler{
		Name:      "test-handler",
		Pattern:   regexp.MustCompile("^test/"),
		Parser:    CSVParser(),
		Notifier:  tn,
		Projector: projector,
		Extractor: newTestExtractor(),
		Loader:    newTestLoader(),
	}

	ctx := context.Background()

	loader, err := New(WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	loader.MustAddHandler(ctx, handler)

	src := bytes.NewBufferString("2020/11/21,foo,123")
	e := Event{Name: "test/name", Bucket: "bucket", source: src}

	if err := loader.Handle(ctx, e); err == nil {
		t.Error("expected error but no error occurred")
	}

	if len(tn.results) != 1 || tn.results[0].Error == nil {
		t.Errorf("expected one failed result, got %+v", tn.results)
	}
}

func TestLoader_Handle_unmatched(t *testing.T) {
	t.Parallel()

	tl := newTestLoader()

	loader, err := New(WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	loader.MustAddHandler(context.Background(), &Handler{
		Name:      "songs",
		Pattern:   regexp.MustCompile(`song_data/.+\.json$`),
		Parser:    CSVParser(),
		Extractor: newTestExtractor(),
		Loader:    tl,
	})

	e := Event{Name: "log_data/2018/11/events.json", source: bytes.NewBufferString("a,b")}
	if err := loader.Handle(context.Background(), e); err != nil {
		t.Fatal(err)
	}

	if tl.calls() != 0 {
		t.Errorf("loader should not be called, but called %d times", tl.calls())
	}
}

func TestLoader_HandleAll(t *testing.T) {
	t.Parallel()

	for _, concurrency := range []int{1, 3} {
		concurrency := concurrency

		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			t.Parallel()

			tl := newTestLoader()

			loader, err := New(WithLogger(zerolog.Nop()), WithConcurrency(concurrency))
			if err != nil {
				t.Fatal(err)
			}
			loader.MustAddHandler(context.Background(), &Handler{
				Name:      "rows",
				Pattern:   regexp.MustCompile(`\.csv$`),
				Parser:    CSVParser(),
				Extractor: newTestExtractor(),
				Loader:    tl,
			})

			events := make([]Event, 6)
			for i := range events {
				events[i] = Event{
					Name:   fmt.Sprintf("part-%d.csv", i),
					source: bytes.NewBufferString(fmt.Sprintf("%d,x\n%d,y", i, i)),
				}
			}

			if err := loader.HandleAll(context.Background(), events); err != nil {
				t.Fatal(err)
			}

			if got := len(tl.records()); got != 12 {
				t.Errorf("expected 12 records, got %d", got)
			}
		})
	}
}

func TestNew_invalidOptions(t *testing.T) {
	t.Parallel()

	cases := map[string]Option{
		"level":       WithLogLevel("loud"),
		"concurrency": WithConcurrency(0),
		"bigquery":    WithBigQuery("project", ""),
	}

	for name, opt := range cases {
		opt := opt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(opt); err == nil {
				t.Error("expected error but no error occurred")
			}
		})
	}
}

func TestLoader_AddHandler_noDestination(t *testing.T) {
	t.Parallel()

	loader, err := New(WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}

	h := &Handler{Name: "no-destination", Parser: CSVParser()}
	if err := loader.AddHandler(context.Background(), h); err == nil {
		t.Error("expected error but no error occurred")
	}
}

type testExtractor struct{}

func newTestExtractor() Extractor {
	return &testExtractor{}
}

func (e *testExtractor) Extract(_ context.Context, ev Event) (io.Reader, func(), error) {
	return ev.source, func() {}, nil
}

type testLoader struct {
	mu     sync.Mutex
	result [][]string
	n      int32
}

func newTestLoader() *testLoader {
	return &testLoader{}
}

func (l *testLoader) Load(ctx context.Context, rs [][]string) error {
	atomic.AddInt32(&l.n, 1)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.result = append(l.result, rs...)

	return nil
}

func (l *testLoader) records() [][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result
}

func (l *testLoader) calls() int {
	return int(atomic.LoadInt32(&l.n))
}

type testNotifier struct {
	results []*Result
}

func newTestNotifier() *testNotifier {
	return &testNotifier{}
}

func (n *testNotifier) Notify(ctx context.Context, r *Result) error {
	n.results = append(n.results, r)
	return nil
}
