package capstone

import (
	"context"
	"database/sql"
	"regexp"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader"
	"go.nownabe.dev/dwloader/contrib/handlers"
	"go.nownabe.dev/dwloader/schema"
	"go.nownabe.dev/dwloader/warehouse"
)

// BuildOptions configures Build. Either DB or BigQueryProject must be set.
type BuildOptions struct {
	Extractor Extractor

	// Codes labels SAS codes. Defaults to handlers.DefaultSASCodes.
	Codes *handlers.SASCodes

	// Resolver finds states of temperature records. When nil, a
	// GeocoderResolver is built from GoogleAPIKey if given, otherwise the
	// enriched temperature dataset is read.
	Resolver     handlers.StateResolver
	GoogleAPIKey string

	Concurrency int
	Notifier    dwloader.Notifier

	DB      *sql.DB
	Dialect warehouse.Dialect

	BigQueryProject string
	BigQueryDataset string
}

type dataset struct {
	name    string
	pattern string
	handler func(name, pattern string) *dwloader.Handler
}

// Build loads every capstone dataset into the target and then builds the
// derived tables.
func Build(ctx context.Context, opts BuildOptions) error {
	lg := log.Ctx(ctx)

	if opts.DB == nil && opts.BigQueryProject == "" {
		return xerrors.New("either a database or a BigQuery project is required")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	codes := opts.Codes
	if codes == nil {
		var err error
		codes, err = handlers.DefaultSASCodes()
		if err != nil {
			return xerrors.Errorf("failed to load SAS codes: %w", err)
		}
	}

	resolver, err := stateResolver(ctx, opts)
	if err != nil {
		return err
	}

	lopts := []dwloader.Option{
		dwloader.WithLogger(*lg),
		dwloader.WithConcurrency(opts.Concurrency),
		dwloader.WithExtractor(dwloader.NewExtractor(opts.Extractor.StoreOptions()...)),
	}

	if opts.DB != nil {
		if err := warehouse.CreateTables(ctx, opts.DB, opts.Dialect, schema.CapstoneTables()...); err != nil {
			return xerrors.Errorf("failed to create tables: %w", err)
		}
		lopts = append(lopts, dwloader.WithDB(opts.DB, opts.Dialect))
	} else {
		lopts = append(lopts, dwloader.WithBigQuery(opts.BigQueryProject, opts.BigQueryDataset))
	}

	l, err := dwloader.New(lopts...)
	if err != nil {
		return err
	}
	defer l.Close()

	datasets := []dataset{
		{SASData, `(^|/)` + SASData + `/.+\.parquet$`, func(name, pattern string) *dwloader.Handler {
			return handlers.Immigration(name, pattern, codes, opts.Notifier)
		}},
		{TemperatureFile, `(^|/)GlobalLandTemperaturesByCity\.csv$`, func(name, pattern string) *dwloader.Handler {
			return handlers.Temperatures(name, pattern, resolver, opts.Notifier)
		}},
		{DemographicsFile, `(^|/)us-cities-demographics\.csv$`, func(name, pattern string) *dwloader.Handler {
			return handlers.Demographics(name, pattern, opts.Notifier)
		}},
		{AirportsFile, `(^|/)airport-codes_csv\.csv$`, func(name, pattern string) *dwloader.Handler {
			return handlers.Airports(name, pattern, opts.Notifier)
		}},
	}

	for _, d := range datasets {
		if err := l.AddHandler(ctx, d.handler(d.name, d.pattern)); err != nil {
			return err
		}
	}

	for _, d := range datasets {
		loc := opts.Extractor.Location(ctx, d.name)

		events, err := dwloader.ListEvents(ctx, opts.Extractor.Base(), d.name, regexp.MustCompile(d.pattern), opts.Extractor.StoreOptions()...)
		if err != nil {
			return xerrors.Errorf("failed to list %s: %w", loc, err)
		}
		if len(events) == 0 {
			return xerrors.Errorf("no data found in %s", loc)
		}

		if err := l.HandleAll(ctx, events); err != nil {
			return err
		}
	}

	if opts.DB != nil {
		for _, d := range schema.CapstoneDerived() {
			lg.Info().Str("table", d.Name).Msg("building derived table")
			if err := warehouse.RunAll(ctx, opts.DB, d.CreateStatements(opts.Dialect)...); err != nil {
				return xerrors.Errorf("failed to build %s: %w", d.Name, err)
			}
		}
	} else if err := buildBigQueryDerived(ctx, opts.BigQueryProject, opts.BigQueryDataset); err != nil {
		return err
	}

	lg.Info().Msg("Database build complete!")

	return nil
}

func stateResolver(ctx context.Context, opts BuildOptions) (handlers.StateResolver, error) {
	if opts.Resolver != nil {
		return opts.Resolver, nil
	}

	if opts.GoogleAPIKey != "" {
		return NewGeocoderResolver(opts.GoogleAPIKey)
	}

	loc := opts.Extractor.Location(ctx, EnrichedTemperature)

	events, err := dwloader.ListEvents(ctx, opts.Extractor.Base(), EnrichedTemperature, nil, opts.Extractor.StoreOptions()...)
	if err != nil {
		return nil, xerrors.Errorf("failed to list %s, pass a Google API key to geocode instead: %w", loc, err)
	}
	if len(events) == 0 {
		return nil, xerrors.Errorf("%s not found, pass a Google API key to geocode instead", loc)
	}

	r, done, err := dwloader.NewExtractor(opts.Extractor.StoreOptions()...).Extract(ctx, events[0])
	if err != nil {
		return nil, err
	}
	defer done()

	er, err := LoadEnrichedResolver(ctx, r)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Msgf("%d cities with known states", er.Len())

	return er, nil
}

func buildBigQueryDerived(ctx context.Context, project, dataset string) error {
	bq, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return xerrors.Errorf("failed to build bigquery client for %s: %w", project, err)
	}
	defer bq.Close()

	for _, d := range schema.CapstoneDerived() {
		log.Ctx(ctx).Info().Str("table", d.Name).Msg("building derived table")

		for _, stmt := range d.CreateStatements(warehouse.BigQuery) {
			q := bq.Query(stmt)
			q.DefaultProjectID = project
			q.DefaultDatasetID = dataset

			job, err := q.Run(ctx)
			if err != nil {
				return xerrors.Errorf("failed to run query for %s: %w", d.Name, err)
			}

			status, err := job.Wait(ctx)
			if err != nil {
				return xerrors.Errorf("failed to wait query for %s: %w", d.Name, err)
			}
			if err := status.Err(); err != nil {
				return xerrors.Errorf("query for %s failed: %w", d.Name, err)
			}
		}
	}

	return nil
}
