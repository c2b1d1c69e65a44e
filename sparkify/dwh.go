package sparkify

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader"
	"go.nownabe.dev/dwloader/contrib/handlers"
	"go.nownabe.dev/dwloader/schema"
	"go.nownabe.dev/dwloader/warehouse"
)

// ErrConflictingModes is returned when both InsertOnly and CopyOnly are set.
var ErrConflictingModes = errors.New("to run COPY and INSERTs, run without flags")

// Public dataset locations.
const (
	DefaultLogData     = "s3://udacity-dend/log_data"
	DefaultLogJSONPath = "s3://udacity-dend/log_json_path.json"
	DefaultSongData    = "s3://udacity-dend/song_data"
)

// WarehouseOptions configures RunWarehouse.
type WarehouseOptions struct {
	// InsertOnly skips staging.
	InsertOnly bool

	// CopyOnly skips the star schema inserts.
	CopyOnly bool

	// Local stages files from Data through loader handlers instead of COPY.
	Local bool
	Data  string

	// CreateTables drops and recreates every table first.
	CreateTables bool

	LogData     string
	LogJSONPath string
	SongData    string
	Region      string
	IAMRole     string
}

func (o *WarehouseOptions) setDefaults() {
	if o.LogData == "" {
		o.LogData = DefaultLogData
	}
	if o.LogJSONPath == "" {
		o.LogJSONPath = DefaultLogJSONPath
	}
	if o.SongData == "" {
		o.SongData = DefaultSongData
	}
	if o.Region == "" {
		o.Region = warehouse.DefaultRegion
	}
	if o.Data == "" {
		o.Data = "data"
	}
}

// CopyQueries returns the COPY statements filling the staging tables.
func CopyQueries(o WarehouseOptions) []string {
	o.setDefaults()

	return []string{
		warehouse.CopyStatement{
			Table:      schema.StagingEvents,
			From:       o.LogData,
			Region:     o.Region,
			IAMRole:    o.IAMRole,
			JSONPaths:  o.LogJSONPath,
			TimeFormat: "epochmillisecs",
		}.SQL(),
		warehouse.CopyStatement{
			Table:   schema.StagingSongs,
			From:    o.SongData,
			Region:  o.Region,
			IAMRole: o.IAMRole,
		}.SQL(),
	}
}

// InsertQuery fills a star schema table from the staging tables.
type InsertQuery struct {
	Table   string
	Columns []string
	Select  string
}

// SQL renders INSERT INTO ... SELECT.
func (q InsertQuery) SQL() string {
	return "INSERT INTO " + q.Table + " (" + strings.Join(q.Columns, ", ") + ")\n" + q.Select
}

// InsertQueries returns the inserts of the star schema for d, fact first.
func InsertQueries(d warehouse.Dialect) []InsertQuery {
	return []InsertQuery{
		{
			Table:   schema.Songplays,
			Columns: []string{"start_time", "user_id", "level", "song_id", "artist_id", "session_id", "location", "user_agent"},
			Select:  SongplaysSelect,
		},
		{
			Table:   schema.Users,
			Columns: []string{"user_id", "first_name", "last_name", "gender", "level"},
			Select:  UsersSelect,
		},
		{
			Table:   schema.Songs,
			Columns: []string{"song_id", "title", "artist_id", "year", "duration"},
			Select:  SongsSelect,
		},
		{
			Table:   schema.Artists,
			Columns: []string{"artist_id", "name", "location", "latitude", "longitude"},
			Select:  ArtistsSelect,
		},
		{
			Table:   schema.Time,
			Columns: []string{"start_time", "hour", "day", "week", "month", "year", "weekday"},
			Select:  TimeSelect(d),
		},
	}
}

// SongplaysSelect picks song plays and matches them to songs by title,
// artist name and duration.
const SongplaysSelect = `SELECT e.ts, e.userId, e.level, s.song_id, s.artist_id, e.sessionId, e.location, e.userAgent
FROM staging_events e
LEFT JOIN staging_songs s
    ON e.song = s.title AND e.artist = s.artist_name AND e.length = s.duration
WHERE e.page = 'NextSong'`

// UsersSelect picks the latest attributes of every user.
const UsersSelect = `SELECT DISTINCT e.userId, e.firstName, e.lastName, e.gender, e.level
FROM staging_events e
JOIN (
    SELECT userId, MAX(ts) AS ts
    FROM staging_events
    WHERE page = 'NextSong' AND userId IS NOT NULL
    GROUP BY userId
) latest ON e.userId = latest.userId AND e.ts = latest.ts
WHERE e.page = 'NextSong'`

// SongsSelect picks one row per song.
const SongsSelect = `SELECT song_id, MAX(title), MAX(artist_id), MAX(year), MAX(duration)
FROM staging_songs
WHERE song_id IS NOT NULL
GROUP BY song_id`

// ArtistsSelect picks one row per artist.
const ArtistsSelect = `SELECT artist_id, MAX(artist_name), MAX(artist_location), MAX(artist_latitude), MAX(artist_longitude)
FROM staging_songs
WHERE artist_id IS NOT NULL
GROUP BY artist_id`

// TimeSelect breaks down the timestamps of song plays. week is the ISO week
// and weekday the day name.
func TimeSelect(d warehouse.Dialect) string {
	const from = `
FROM staging_events
WHERE page = 'NextSong' AND ts IS NOT NULL`

	switch d {
	case warehouse.SQLite:
		return `SELECT DISTINCT ts,
    CAST(strftime('%H', ts) AS INTEGER),
    CAST(strftime('%d', ts) AS INTEGER),
    CAST(strftime('%V', ts) AS INTEGER),
    CAST(strftime('%m', ts) AS INTEGER),
    CAST(strftime('%Y', ts) AS INTEGER),
    CASE CAST(strftime('%w', ts) AS INTEGER)
        WHEN 0 THEN 'Sunday'
        WHEN 1 THEN 'Monday'
        WHEN 2 THEN 'Tuesday'
        WHEN 3 THEN 'Wednesday'
        WHEN 4 THEN 'Thursday'
        WHEN 5 THEN 'Friday'
        ELSE 'Saturday'
    END` + from
	case warehouse.MySQL:
		return `SELECT DISTINCT ts, HOUR(ts), DAY(ts), WEEK(ts, 3), MONTH(ts), YEAR(ts), DAYNAME(ts)` + from
	default:
		return `SELECT DISTINCT ts,
    EXTRACT(hour FROM ts),
    EXTRACT(day FROM ts),
    EXTRACT(week FROM ts),
    EXTRACT(month FROM ts),
    EXTRACT(year FROM ts),
    TRIM(TO_CHAR(ts, 'Day'))` + from
	}
}

// RunWarehouse stages the raw datasets and builds the star schema from them.
func RunWarehouse(ctx context.Context, db *sql.DB, dialect warehouse.Dialect, opts WarehouseOptions) error {
	if opts.InsertOnly && opts.CopyOnly {
		return ErrConflictingModes
	}
	opts.setDefaults()

	lg := log.Ctx(ctx)

	if opts.CreateTables {
		tables := schema.SparkifyWarehouseTables()
		if err := warehouse.DropTables(ctx, db, dialect, tables...); err != nil {
			return xerrors.Errorf("failed to drop tables: %w", err)
		}
		if err := warehouse.CreateTables(ctx, db, dialect, tables...); err != nil {
			return xerrors.Errorf("failed to create tables: %w", err)
		}
	}

	if !opts.InsertOnly {
		if opts.Local {
			for _, op := range localStages(db, dialect, opts.Data) {
				if err := op.Execute(ctx); err != nil {
					return err
				}
			}
		} else {
			lg.Info().Msg("copying staging tables")
			if err := warehouse.RunAll(ctx, db, CopyQueries(opts)...); err != nil {
				return xerrors.Errorf("failed to load staging tables: %w", err)
			}
		}
	}

	if !opts.CopyOnly {
		for _, q := range InsertQueries(dialect) {
			lg.Info().Str("table", q.Table).Msg("inserting from staging tables")
			if err := warehouse.RunAll(ctx, db, q.SQL()); err != nil {
				return xerrors.Errorf("failed to insert into %s: %w", q.Table, err)
			}
		}
	}

	return nil
}

// LocalStage empties a staging table and loads it from local files through a
// loader handler.
type LocalStage struct {
	DB      *sql.DB
	Dialect warehouse.Dialect
	Data    string
	Prefix  string
	Handler func(name, pattern string, n dwloader.Notifier) *dwloader.Handler
	Table   string
}

// Execute truncates and loads Table.
func (s *LocalStage) Execute(ctx context.Context) error {
	if err := warehouse.RunAll(ctx, s.DB, s.Dialect.Truncate(s.Table)); err != nil {
		return xerrors.Errorf("failed to clear %s: %w", s.Table, err)
	}

	l, err := dwloader.New(
		dwloader.WithLogger(*log.Ctx(ctx)),
		dwloader.WithDB(s.DB, s.Dialect),
	)
	if err != nil {
		return err
	}
	defer l.Close()

	if err := l.AddHandler(ctx, s.Handler(s.Table, `(^|/)`+s.Prefix+`/.+\.json$`, nil)); err != nil {
		return err
	}

	return ProcessData(ctx, l, s.Data, s.Prefix)
}

func localStages(db *sql.DB, dialect warehouse.Dialect, data string) []*LocalStage {
	return []*LocalStage{
		{DB: db, Dialect: dialect, Data: data, Prefix: LogData, Handler: handlers.StagingEvents, Table: schema.StagingEvents},
		{DB: db, Dialect: dialect, Data: data, Prefix: SongData, Handler: handlers.StagingSongs, Table: schema.StagingSongs},
	}
}
