package lake

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader/contrib/handlers"
)

// Song is a row of the songs table, partitioned by year and artist_id.
type Song struct {
	SongID   string   `parquet:"song_id"`
	Title    *string  `parquet:"title,optional"`
	Duration *float64 `parquet:"duration,optional"`
}

// Artist is a row of the artists table, partitioned by artist_id.
type Artist struct {
	Name      *string  `parquet:"name,optional"`
	Location  *string  `parquet:"location,optional"`
	Latitude  *float64 `parquet:"latitude,optional"`
	Longitude *float64 `parquet:"longitude,optional"`
}

// Time is a row of the time table, partitioned by year and month. Weekday
// counts from Sunday=1.
type Time struct {
	StartTime time.Time `parquet:"start_time"`
	Hour      int32     `parquet:"hour"`
	Day       int32     `parquet:"day"`
	Week      int32     `parquet:"week"`
	Weekday   int32     `parquet:"weekday"`
}

// User is a row of the users table.
type User struct {
	UserID    *int64  `parquet:"user_id,optional"`
	FirstName *string `parquet:"first_name,optional"`
	LastName  *string `parquet:"last_name,optional"`
	Gender    *string `parquet:"gender,optional"`
	Level     *string `parquet:"level,optional"`
}

// Songplay is a row of the songplays table, partitioned by year and month.
type Songplay struct {
	SongplayID int64     `parquet:"songplay_id"`
	StartTime  time.Time `parquet:"start_time"`
	UserID     *int64    `parquet:"user_id,optional"`
	Level      *string   `parquet:"level,optional"`
	SongID     *string   `parquet:"song_id,optional"`
	ArtistID   *string   `parquet:"artist_id,optional"`
	SessionID  *int64    `parquet:"session_id,optional"`
	Location   *string   `parquet:"location,optional"`
	UserAgent  *string   `parquet:"user_agent,optional"`
}

// SongIndex finds song and artist ids by artist name and title.
type SongIndex map[[2]string][2]string

// ProcessSongData writes the songs and artists tables and returns the index
// the songplays table is joined with.
func (j *Job) ProcessSongData(ctx context.Context) (SongIndex, error) {
	rows, err := j.readJSON(ctx, "song_data", handlers.SongColumns)
	if err != nil {
		return nil, err
	}

	songs := newPartitions[Song]("year", "artist_id")
	artists := newPartitions[Artist]("artist_id")
	seenArtists := map[[5]string]bool{}
	index := SongIndex{}

	for i, r := range rows {
		get := func(name string) string { return songHeader.Get(r, name) }

		duration, err := optFloat(get("duration"))
		if err != nil {
			return nil, xerrors.Errorf("song %d: %w", i, err)
		}
		year, err := handlers.NormalizeInt(get("year"))
		if err != nil {
			return nil, xerrors.Errorf("song %d: %w", i, err)
		}

		songs.add(Song{
			SongID:   get("song_id"),
			Title:    optString(get("title")),
			Duration: duration,
		}, year, get("artist_id"))

		key := [2]string{get("artist_name"), get("title")}
		if _, ok := index[key]; !ok {
			index[key] = [2]string{get("song_id"), get("artist_id")}
		}

		artist := [5]string{get("artist_id"), get("artist_name"), get("artist_location"), get("artist_latitude"), get("artist_longitude")}
		if seenArtists[artist] {
			continue
		}
		seenArtists[artist] = true

		lat, err := optFloat(artist[3])
		if err != nil {
			return nil, xerrors.Errorf("song %d: %w", i, err)
		}
		lon, err := optFloat(artist[4])
		if err != nil {
			return nil, xerrors.Errorf("song %d: %w", i, err)
		}

		artists.add(Artist{
			Name:      optString(artist[1]),
			Location:  optString(artist[2]),
			Latitude:  lat,
			Longitude: lon,
		}, artist[0])
	}

	if err := writeTable(ctx, j, "songs", songs); err != nil {
		return nil, err
	}
	if err := writeTable(ctx, j, "artists", artists); err != nil {
		return nil, err
	}

	return index, nil
}

// ProcessLogData writes the time, users and songplays tables from song play
// events. Songs are matched through index.
func (j *Job) ProcessLogData(ctx context.Context, index SongIndex) error {
	rows, err := j.readJSON(ctx, "log_data", handlers.EventColumns)
	if err != nil {
		return err
	}

	times := newPartitions[Time]("year", "month")
	users := newPartitions[User]()
	plays := newPartitions[Songplay]("year", "month")

	seenTimes := map[time.Time]bool{}
	seenUsers := map[[5]string]bool{}
	var id int64
	skipped := 0

	for i, r := range rows {
		get := func(name string) string { return eventHeader.Get(r, name) }

		if get("page") != "NextSong" {
			skipped++
			continue
		}

		t, err := handlers.EventTime(get("ts"))
		if err != nil {
			return xerrors.Errorf("event %d: %w", i, err)
		}
		t = t.Truncate(time.Second)
		year, month := strconv.Itoa(t.Year()), strconv.Itoa(int(t.Month()))

		if !seenTimes[t] {
			seenTimes[t] = true
			_, week := t.ISOWeek()
			times.add(Time{
				StartTime: t,
				Hour:      int32(t.Hour()),
				Day:       int32(t.Day()),
				Week:      int32(week),
				Weekday:   int32(t.Weekday()) + 1,
			}, year, month)
		}

		userID, err := optInt(get("userId"))
		if err != nil {
			return xerrors.Errorf("event %d: %w", i, err)
		}

		user := [5]string{get("userId"), get("firstName"), get("lastName"), get("gender"), get("level")}
		if !seenUsers[user] {
			seenUsers[user] = true
			users.add(User{
				UserID:    userID,
				FirstName: optString(user[1]),
				LastName:  optString(user[2]),
				Gender:    optString(user[3]),
				Level:     optString(user[4]),
			})
		}

		sessionID, err := optInt(get("sessionId"))
		if err != nil {
			return xerrors.Errorf("event %d: %w", i, err)
		}

		play := Songplay{
			SongplayID: id,
			StartTime:  t,
			UserID:     userID,
			Level:      optString(get("level")),
			SessionID:  sessionID,
			Location:   optString(get("location")),
			UserAgent:  optString(get("userAgent")),
		}
		if ids, ok := index[[2]string{get("artist"), get("song")}]; ok {
			play.SongID = optString(ids[0])
			play.ArtistID = optString(ids[1])
		}
		plays.add(play, year, month)
		id++
	}

	log.Ctx(ctx).Info().Msgf("%d song plays found, %d other events skipped", id, skipped)

	if err := writeTable(ctx, j, "time", times); err != nil {
		return err
	}
	if err := writeTable(ctx, j, "users", users); err != nil {
		return err
	}
	return writeTable(ctx, j, "songplays", plays)
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, xerrors.Errorf("%q is not a number: %w", s, err)
	}
	if math.IsNaN(f) {
		return nil, nil
	}
	return &f, nil
}

func optInt(s string) (*int64, error) {
	n, err := handlers.NormalizeInt(s)
	if err != nil || n == "" {
		return nil, err
	}
	v, err := strconv.ParseInt(n, 10, 64)
	if err != nil {
		return nil, xerrors.Errorf("%q is not an integer: %w", s, err)
	}
	return &v, nil
}
