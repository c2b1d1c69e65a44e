// Package sparkify loads the Sparkify song and listening-log datasets into a
// star schema: row by row into Postgres, through staging tables into a
// warehouse, or as an hourly DAG.
package sparkify

import (
	"context"
	"database/sql"
	"regexp"
	"strconv"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader"
	"go.nownabe.dev/dwloader/contrib/handlers"
	"go.nownabe.dev/dwloader/schema"
	"go.nownabe.dev/dwloader/warehouse"
)

// Dataset prefixes under the data location.
const (
	SongData = "song_data"
	LogData  = "log_data"
)

var jsonFile = regexp.MustCompile(`\.json$`)

// ProcessData lists every JSON file under prefix of uri and hands them to
// l one by one.
func ProcessData(ctx context.Context, l dwloader.DWLoader, uri, prefix string) error {
	lg := log.Ctx(ctx)

	events, err := dwloader.ListEvents(ctx, uri, prefix, jsonFile)
	if err != nil {
		return xerrors.Errorf("failed to list files in %s: %w", uri, err)
	}

	lg.Info().Msgf("%d files found in %s/%s", len(events), uri, prefix)

	for i, e := range events {
		if err := l.Handle(ctx, e); err != nil {
			return err
		}
		lg.Info().Msgf("%d/%d files processed.", i+1, len(events))
	}

	return nil
}

// ETLOptions configures RunETL.
type ETLOptions struct {
	// Data is the location holding song_data and log_data.
	Data string

	// Concurrency is how many rows each handler projects at once.
	Concurrency int

	Notifier dwloader.Notifier
}

// RunETL creates the star schema when missing and loads song files and then
// log files into it.
func RunETL(ctx context.Context, db *sql.DB, dialect warehouse.Dialect, opts ETLOptions) error {
	if opts.Data == "" {
		opts.Data = "data"
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	if err := warehouse.CreateTables(ctx, db, dialect, schema.SparkifyTables()...); err != nil {
		return xerrors.Errorf("failed to create tables: %w", err)
	}

	l, err := dwloader.New(
		dwloader.WithLogger(*log.Ctx(ctx)),
		dwloader.WithDB(db, dialect),
		dwloader.WithConcurrency(opts.Concurrency),
	)
	if err != nil {
		return err
	}
	defer l.Close()

	songs := `(^|/)` + SongData + `/.+\.json$`
	logs := `(^|/)` + LogData + `/.+\.json$`
	lookup := &SQLSongLookup{DB: db, Dialect: dialect}

	hs := []*dwloader.Handler{
		handlers.Songs("songs", songs, opts.Notifier),
		handlers.Artists("artists", songs, opts.Notifier),
		handlers.Time("time", logs, opts.Notifier),
		handlers.Users("users", logs, opts.Notifier),
		handlers.Songplays("songplays", logs, lookup, opts.Notifier),
	}
	for _, h := range hs {
		if err := l.AddHandler(ctx, h); err != nil {
			return err
		}
	}

	if err := ProcessData(ctx, l, opts.Data, SongData); err != nil {
		return err
	}

	return ProcessData(ctx, l, opts.Data, LogData)
}

// SQLSongLookup finds songs loaded into the songs and artists tables.
type SQLSongLookup struct {
	DB      warehouse.Execer
	Dialect warehouse.Dialect
}

// Lookup matches title, artist name and duration.
func (s *SQLSongLookup) Lookup(ctx context.Context, title, artist, duration string) (string, string, error) {
	if title == "" || artist == "" || duration == "" {
		return "", "", nil
	}

	d, err := strconv.ParseFloat(duration, 64)
	if err != nil {
		return "", "", xerrors.Errorf("invalid duration %q: %w", duration, err)
	}

	q := "SELECT songs.song_id, artists.artist_id" +
		" FROM songs JOIN artists ON songs.artist_id = artists.artist_id" +
		" WHERE songs.title = " + s.Dialect.Placeholder(1) +
		" AND artists.name = " + s.Dialect.Placeholder(2) +
		" AND songs.duration = " + s.Dialect.Placeholder(3)

	var songID, artistID string
	err = s.DB.QueryRowContext(ctx, q, title, artist, d).Scan(&songID, &artistID)
	if xerrors.Is(err, sql.ErrNoRows) {
		return "", "", nil
	}
	if err != nil {
		return "", "", xerrors.Errorf("failed to look up song: %w", err)
	}

	return songID, artistID, nil
}
