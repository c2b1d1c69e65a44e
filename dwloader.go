package dwloader

import (
	"context"
	"database/sql"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader/warehouse"
)

// DWLoader routes source objects to the handlers that load them into a
// warehouse.
type DWLoader interface {
	AddHandler(context.Context, *Handler) error
	Handle(context.Context, Event) error
	HandleAll(context.Context, []Event) error
	MustAddHandler(context.Context, *Handler)
	Close() error
}

// New build a new DWLoader.
func New(opts ...Option) (DWLoader, error) {
	l := &dwloader{
		handlers:    []*Handler{},
		mu:          sync.RWMutex{},
		concurrency: 1,
		logLevel:    zerolog.InfoLevel,
	}

	for _, o := range opts {
		if err := o.apply(l); err != nil {
			return nil, err
		}
	}

	if l.logger == nil {
		logger := NewLogger(l.prettyLogging, l.logLevel)
		l.logger = &logger
	}

	if l.extractor == nil {
		l.extractor = NewExtractor()
	}

	return l, nil
}

type dwloader struct {
	handlers []*Handler
	mu       sync.RWMutex

	concurrency   int
	prettyLogging bool
	logLevel      zerolog.Level
	logger        *zerolog.Logger

	extractor Extractor

	db      *sql.DB
	dialect warehouse.Dialect

	bqProject string
	bqDataset string

	closers []io.Closer
}

func (l *dwloader) AddHandler(ctx context.Context, h *Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h.Extractor == nil {
		h.Extractor = l.extractor
	}

	if h.Loader == nil {
		loader, err := l.defaultLoader(ctx, h)
		if err != nil {
			return xerrors.Errorf("failed to build loader for handler %s: %w", h.Name, err)
		}
		h.Loader = loader
	}

	if h.semaphore == nil {
		h.SetConcurrency(l.concurrency)
	}

	if h.BatchSize <= 0 {
		h.BatchSize = defaultBatchSize
	}

	l.handlers = append(l.handlers, h)

	return nil
}

func (l *dwloader) defaultLoader(ctx context.Context, h *Handler) (Loader, error) {
	if h.Table.Name == "" {
		return nil, xerrors.New("handler has neither Loader nor Table")
	}

	switch {
	case l.db != nil:
		return NewSQLLoader(l.db, l.dialect, h.Table, h.Conflict), nil
	case l.bqProject != "":
		bl, err := NewBigQueryLoader(ctx, l.bqProject, l.bqDataset, h.Table)
		if err != nil {
			return nil, err
		}
		l.closers = append(l.closers, bl)
		return bl, nil
	default:
		return nil, xerrors.New("no destination configured, use WithDB or WithBigQuery")
	}
}

func (l *dwloader) MustAddHandler(ctx context.Context, h *Handler) {
	if err := l.AddHandler(ctx, h); err != nil {
		panic(err)
	}
}

func (l *dwloader) Handle(ctx context.Context, e Event) error {
	ctx = l.logger.With().Str("file", e.FullPath()).Logger().WithContext(ctx)
	ctx = withStartedTime(ctx)
	lg := log.Ctx(ctx)

	lg.Debug().Msg("loader started")
	defer lg.Debug().Msg("loader finished")

	l.mu.RLock()
	handlers := l.handlers
	l.mu.RUnlock()

	for _, h := range handlers {
		if !h.match(e.Name) {
			continue
		}

		lg.Debug().Str("handler", h.Name).Msg("handler matches")

		err := h.handle(ctx, e)
		if err != nil {
			lg.Error().Str("handler", h.Name).Err(err).Msg("handler failed")
		}

		if h.Notifier != nil {
			r := &Result{Event: e, Handler: h, Error: err}
			if t, ok := startedTimeFrom(ctx); ok {
				r.Elapsed = timeSince(t)
			}
			if nerr := h.Notifier.Notify(ctx, r); nerr != nil {
				lg.Error().Err(nerr).Msg("failed to notify")
			}
		}

		if err != nil {
			return xerrors.Errorf("handler %s failed on %s: %w", h.Name, e.FullPath(), err)
		}
	}

	return nil
}

// HandleAll handles events in order, or concurrently when the loader was
// built WithConcurrency greater than one.
func (l *dwloader) HandleAll(ctx context.Context, events []Event) error {
	if l.concurrency <= 1 {
		for _, e := range events {
			if err := l.Handle(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(l.concurrency)

	for _, e := range events {
		e := e
		eg.Go(func() error {
			return l.Handle(ctx, e)
		})
	}

	return eg.Wait()
}

func (l *dwloader) Close() error {
	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
