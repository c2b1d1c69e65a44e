package dwloader

import (
	"context"
	"regexp"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader/warehouse"
)

const defaultBatchSize = 10000

// Handler defines how to handle events which match specified pattern.
type Handler struct {
	// Name is the handler's name.
	Name string

	Pattern         *regexp.Regexp
	Encoding        encoding.Encoding
	Parser          Parser
	SkipLeadingRows int

	// HasHeader takes the first row after SkipLeadingRows as the header.
	// Projectors and aggregators read it with HeaderFrom.
	HasHeader bool

	Preprocessor Preprocessor
	Projector    Projector
	Aggregator   Aggregator
	Notifier     Notifier

	// BatchSize is the number of records passed to the loader at once.
	BatchSize int

	// Table is the destination table.
	Table warehouse.Table

	// Conflict is applied to SQL destinations when set.
	Conflict *warehouse.Conflict

	Extractor Extractor
	Loader    Loader

	semaphore chan struct{}
}

// Preprocessor runs before extraction and may store values in the context for
// the projector.
type Preprocessor func(context.Context, Event) (context.Context, error)

// Projector transforms source records into records for destination.
// Returning a nil record skips the row.
type Projector func(context.Context, []string) ([]string, error)

// Aggregator transforms the whole set of projected records, for example to
// filter by a global property or to group rows.
type Aggregator func(context.Context, [][]string) ([][]string, error)

// SetConcurrency sets how many rows are projected at once.
func (h *Handler) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	h.semaphore = make(chan struct{}, n)
}

func (h *Handler) match(name string) bool {
	return h.Pattern != nil && h.Pattern.MatchString(name)
}

// Handle processes e regardless of Pattern.
func (h *Handler) Handle(ctx context.Context, e Event) error {
	if h.semaphore == nil {
		h.SetConcurrency(1)
	}
	if h.BatchSize <= 0 {
		h.BatchSize = defaultBatchSize
	}
	return h.handle(ctx, e)
}

func (h *Handler) handle(ctx context.Context, e Event) error {
	l := log.Ctx(ctx).With().Str("handler", h.Name).Logger()
	ctx = l.WithContext(ctx)

	if h.Preprocessor != nil {
		var err error
		ctx, err = h.Preprocessor(ctx, e)
		if err != nil {
			return xerrors.Errorf("failed to preprocess: %w", err)
		}
	}

	r, closer, err := h.Extractor.Extract(ctx, e)
	if err != nil {
		return xerrors.Errorf("failed to extract: %w", err)
	}
	defer closer()

	if h.Encoding != nil {
		r = transform.NewReader(r, h.Encoding.NewDecoder())
	}

	source, err := h.Parser(ctx, r)
	if err != nil {
		l.Error().Err(err).Msg("failed to parse object")
		return xerrors.Errorf("failed to parse: %w", err)
	}

	if h.SkipLeadingRows > len(source) {
		source = nil
	} else {
		source = source[h.SkipLeadingRows:]
	}

	offset := h.SkipLeadingRows
	if h.HasHeader {
		if len(source) == 0 {
			return xerrors.New("header row is missing")
		}
		ctx = withHeader(ctx, Header(source[0]))
		source = source[1:]
		offset++
	}

	records, err := h.project(ctx, source, offset)
	if err != nil {
		return err
	}

	if h.Aggregator != nil {
		records, err = h.Aggregator(ctx, records)
		if err != nil {
			return xerrors.Errorf("failed to aggregate: %w", err)
		}
	}

	l.Debug().Msgf("%d records projected from %d rows", len(records), len(source))

	for start := 0; start < len(records); start += h.BatchSize {
		end := start + h.BatchSize
		if end > len(records) {
			end = len(records)
		}

		if err := h.Loader.Load(ctx, records[start:end]); err != nil {
			return xerrors.Errorf("failed to load records %d-%d: %w", start, end-1, err)
		}
	}

	l.Info().Msgf("loaded %d records", len(records))

	return nil
}

// project runs the projector over source keeping the order of rows. offset is
// the line number of source[0] for error messages.
func (h *Handler) project(ctx context.Context, source [][]string, offset int) ([][]string, error) {
	if h.Projector == nil {
		return source, nil
	}

	projected := make([][]string, len(source))

	eg, ctx := errgroup.WithContext(ctx)

	for i, r := range source {
		i, r := i, r

		select {
		case h.semaphore <- struct{}{}:
		case <-ctx.Done():
			if err := eg.Wait(); err != nil {
				return nil, err
			}
			return nil, ctx.Err()
		}

		eg.Go(func() error {
			defer func() { <-h.semaphore }()

			record, err := h.Projector(ctx, r)
			if err != nil {
				log.Ctx(ctx).Error().Err(err).Msgf("failed to project row %d", i+offset)
				return xerrors.Errorf("failed to project row %d (line %d): %w", i, i+offset, err)
			}
			projected[i] = record

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	records := make([][]string, 0, len(projected))
	for _, r := range projected {
		if r != nil {
			records = append(records, r)
		}
	}

	return records, nil
}
