package handlers

import (
	"context"
	"regexp"
	"strconv"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader"
	"go.nownabe.dev/dwloader/schema"
	"go.nownabe.dev/dwloader/warehouse"
)

// EventColumns are the fields of a log event in the order of the staging
// table.
var EventColumns = []string{
	"artist", "auth", "firstName", "gender", "itemInSession", "lastName", "length",
	"level", "location", "method", "page", "registration", "sessionId", "song",
	"status", "ts", "userAgent", "userId",
}

// SongColumns are the fields of a song metadata file in the order of the
// staging table.
var SongColumns = []string{
	"artist_id", "artist_latitude", "artist_location", "artist_longitude", "artist_name",
	"duration", "num_songs", "song_id", "title", "year",
}

const (
	evArtist    = 0
	evFirstName = 2
	evGender    = 3
	evLastName  = 5
	evLength    = 6
	evLevel     = 7
	evLocation  = 8
	evPage      = 10
	evSessionID = 12
	evSong      = 13
	evTS        = 15
	evUserAgent = 16
	evUserID    = 17
)

// SongLookup finds the song and artist ids of a played song.
type SongLookup interface {
	// Lookup returns empty ids when the song is unknown.
	Lookup(ctx context.Context, title, artist, duration string) (songID, artistID string, err error)
}

// EventTime converts an epoch milliseconds cell into a UTC time.
func EventTime(ts string) (time.Time, error) {
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(ts, 64)
		if ferr != nil {
			return time.Time{}, xerrors.Errorf("invalid timestamp %q: %w", ts, err)
		}
		ms = int64(f)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// Songs builds a handler loading the songs dimension from song metadata files.
func Songs(name, pattern string, n dwloader.Notifier) *dwloader.Handler {
	return &dwloader.Handler{
		Name:    name,
		Pattern: regexp.MustCompile(pattern),

		Parser:   dwloader.JSONParser("song_id", "title", "artist_id", "year", "duration"),
		Notifier: n,

		Table:    schema.SongsTable(false),
		Conflict: &warehouse.Conflict{Keys: []string{"song_id"}},
	}
}

// Artists builds a handler loading the artists dimension from song metadata
// files.
func Artists(name, pattern string, n dwloader.Notifier) *dwloader.Handler {
	return &dwloader.Handler{
		Name:    name,
		Pattern: regexp.MustCompile(pattern),

		Parser:   dwloader.JSONParser("artist_id", "artist_name", "artist_location", "artist_latitude", "artist_longitude"),
		Notifier: n,

		Table:    schema.ArtistsTable(),
		Conflict: &warehouse.Conflict{Keys: []string{"artist_id"}},
	}
}

// Time builds a handler loading the time dimension from log files. Only song
// plays are kept; weekday counts from Monday=0.
func Time(name, pattern string, n dwloader.Notifier) *dwloader.Handler {
	projector := func(ctx context.Context, r []string) ([]string, error) {
		if r[evPage] != "NextSong" {
			return nil, nil
		}

		t, err := EventTime(r[evTS])
		if err != nil {
			return nil, err
		}

		_, week := t.ISOWeek()
		weekday := (int(t.Weekday()) + 6) % 7

		return []string{
			t.Format(warehouse.TimestampLayout),
			strconv.Itoa(t.Hour()),
			strconv.Itoa(t.Day()),
			strconv.Itoa(week),
			strconv.Itoa(int(t.Month())),
			strconv.Itoa(t.Year()),
			strconv.Itoa(weekday),
		}, nil
	}

	return &dwloader.Handler{
		Name:    name,
		Pattern: regexp.MustCompile(pattern),

		Parser:     dwloader.JSONParser(EventColumns...),
		Projector:  projector,
		Aggregator: distinctBy(0, false),
		Notifier:   n,

		Table:    schema.TimeTable(warehouse.SmallInt),
		Conflict: &warehouse.Conflict{Keys: []string{"start_time"}},
	}
}

// Users builds a handler upserting the users dimension from log files. The
// latest level of a user wins.
func Users(name, pattern string, n dwloader.Notifier) *dwloader.Handler {
	projector := func(ctx context.Context, r []string) ([]string, error) {
		if r[evPage] != "NextSong" || r[evUserID] == "" {
			return nil, nil
		}

		return []string{r[evUserID], r[evFirstName], r[evLastName], r[evGender], r[evLevel]}, nil
	}

	return &dwloader.Handler{
		Name:    name,
		Pattern: regexp.MustCompile(pattern),

		Parser:     dwloader.JSONParser(EventColumns...),
		Projector:  projector,
		Aggregator: distinctBy(0, true),
		Notifier:   n,

		Table: schema.UsersTable(),
		Conflict: &warehouse.Conflict{
			Keys:   []string{"user_id"},
			Update: []string{"first_name", "last_name", "gender", "level"},
		},
	}
}

type songKey struct {
	title, artist, duration string
}

type songIDs struct {
	song, artist string
}

// Songplays builds a handler loading the songplays fact table from log files.
// Song and artist ids come from lookup and stay empty for unknown songs.
func Songplays(name, pattern string, lookup SongLookup, n dwloader.Notifier) *dwloader.Handler {
	var cacheKey contextKey = "songCache"

	preprocessor := func(ctx context.Context, _ dwloader.Event) (context.Context, error) {
		return context.WithValue(ctx, cacheKey, &sync.Map{}), nil
	}

	projector := func(ctx context.Context, r []string) ([]string, error) {
		if r[evPage] != "NextSong" {
			return nil, nil
		}

		cache, ok := ctx.Value(cacheKey).(*sync.Map)
		if !ok {
			return nil, xerrors.New("failed to get song cache from context")
		}

		t, err := EventTime(r[evTS])
		if err != nil {
			return nil, err
		}

		key := songKey{title: r[evSong], artist: r[evArtist], duration: r[evLength]}

		var ids songIDs
		if v, ok := cache.Load(key); ok {
			ids = v.(songIDs)
		} else {
			ids.song, ids.artist, err = lookup.Lookup(ctx, key.title, key.artist, key.duration)
			if err != nil {
				return nil, xerrors.Errorf("failed to look up song %q: %w", key.title, err)
			}
			cache.Store(key, ids)
		}

		return []string{
			t.Format(warehouse.TimestampLayout),
			r[evUserID],
			r[evLevel],
			ids.song,
			ids.artist,
			r[evSessionID],
			r[evLocation],
			r[evUserAgent],
		}, nil
	}

	return &dwloader.Handler{
		Name:    name,
		Pattern: regexp.MustCompile(pattern),

		Parser:       dwloader.JSONParser(EventColumns...),
		Preprocessor: preprocessor,
		Projector:    projector,
		Notifier:     n,

		Table: schema.SongplaysTable(false),
	}
}

// StagingEvents builds a handler copying log events as they are into the
// staging table. ts becomes a timestamp.
func StagingEvents(name, pattern string, n dwloader.Notifier) *dwloader.Handler {
	projector := func(ctx context.Context, r []string) ([]string, error) {
		if r[evTS] == "" {
			return r, nil
		}

		t, err := EventTime(r[evTS])
		if err != nil {
			return nil, err
		}
		r[evTS] = t.Format(warehouse.TimestampLayout)

		return r, nil
	}

	return &dwloader.Handler{
		Name:    name,
		Pattern: regexp.MustCompile(pattern),

		Parser:    dwloader.JSONParser(EventColumns...),
		Projector: projector,
		Notifier:  n,

		Table: schema.StagingEventsTable(),
	}
}

// StagingSongs builds a handler copying song metadata into the staging table.
func StagingSongs(name, pattern string, n dwloader.Notifier) *dwloader.Handler {
	return &dwloader.Handler{
		Name:    name,
		Pattern: regexp.MustCompile(pattern),

		Parser:   dwloader.JSONParser(SongColumns...),
		Notifier: n,

		Table: schema.StagingSongsTable(),
	}
}

// distinctBy drops rows repeating the key in column i. With last the latest
// row of a key replaces earlier ones in place.
func distinctBy(i int, last bool) dwloader.Aggregator {
	return func(_ context.Context, rs [][]string) ([][]string, error) {
		seen := map[string]int{}
		out := make([][]string, 0, len(rs))

		for _, r := range rs {
			if j, ok := seen[r[i]]; ok {
				if last {
					out[j] = r
				}
				continue
			}
			seen[r[i]] = len(out)
			out = append(out, r)
		}

		return out, nil
	}
}
