package dwloader

import (
	"context"
	"io"
	"regexp"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader/objstore"
)

// Extractor extracts data from source such as S3 or a local directory.
type Extractor interface {
	Extract(context.Context, Event) (io.Reader, func(), error)
}

type defaultExtractor struct {
	mu     sync.Mutex
	stores map[string]objstore.Store
	open   func(context.Context, objstore.Location) (objstore.Store, error)
}

// NewExtractor builds an Extractor reading any scheme objstore supports.
// Stores are opened once per bucket with opts.
func NewExtractor(opts ...objstore.Option) Extractor {
	return &defaultExtractor{
		stores: map[string]objstore.Store{},
		open: func(ctx context.Context, loc objstore.Location) (objstore.Store, error) {
			return objstore.Open(ctx, loc, opts...)
		},
	}
}

func (e *defaultExtractor) store(ctx context.Context, loc objstore.Location) (objstore.Store, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := loc.Scheme + "://" + loc.Bucket
	if s, ok := e.stores[key]; ok {
		return s, nil
	}

	s, err := e.open(ctx, loc)
	if err != nil {
		return nil, err
	}
	e.stores[key] = s

	return s, nil
}

func (e *defaultExtractor) Extract(ctx context.Context, ev Event) (io.Reader, func(), error) {
	l := log.Ctx(ctx)

	if ev.source != nil {
		return ev.source, func() {}, nil
	}

	s, err := e.store(ctx, ev.Location())
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to open store for %s: %w", ev.FullPath(), err)
	}

	r, err := s.Open(ctx, ev.Name)
	if err != nil {
		l.Error().Err(err).Msg("failed to initialize object reader")
		return nil, nil, xerrors.Errorf("failed to get reader of %s: %w", ev.FullPath(), err)
	}

	return r, func() { r.Close() }, nil
}

// ListEvents lists objects under prefix of uri whose keys match pattern. A nil
// pattern matches everything. prefix is a directory or an object name.
func ListEvents(ctx context.Context, uri, prefix string, pattern *regexp.Regexp, opts ...objstore.Option) ([]Event, error) {
	loc, err := objstore.ParseLocation(uri)
	if err != nil {
		return nil, err
	}

	s, err := objstore.Open(ctx, loc, opts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to open store for %s: %w", uri, err)
	}

	keys, err := s.List(ctx, loc.Join(prefix).Key)
	if err != nil {
		return nil, err
	}

	events := []Event{}
	for _, k := range keys {
		if pattern != nil && !pattern.MatchString(k) {
			continue
		}
		events = append(events, Event{Scheme: loc.Scheme, Bucket: loc.Bucket, Name: k})
	}

	return events, nil
}
