// Package schema catalogues the tables the jobs create and load.
package schema

import "go.nownabe.dev/dwloader/warehouse"

// Sparkify star schema table names.
const (
	Songplays     = "songplays"
	Users         = "users"
	Songs         = "songs"
	Artists       = "artists"
	Time          = "time"
	StagingEvents = "staging_events"
	StagingSongs  = "staging_songs"
)

// SongplaysTable is the fact table of song plays.
func SongplaysTable(references bool) warehouse.Table {
	ref := func(r string) string {
		if references {
			return r
		}
		return ""
	}

	return warehouse.Table{
		Name: Songplays,
		Columns: []warehouse.Column{
			{Name: "songplay_id", Type: warehouse.Int, PrimaryKey: true, Identity: true},
			{Name: "start_time", Type: warehouse.Timestamp, NotNull: true, References: ref("time(start_time)")},
			{Name: "user_id", Type: warehouse.Int, NotNull: true, References: ref("users(user_id)")},
			{Name: "level", Type: warehouse.Text},
			{Name: "song_id", Type: warehouse.Text, References: ref("songs(song_id)")},
			{Name: "artist_id", Type: warehouse.Text, References: ref("artists(artist_id)")},
			{Name: "session_id", Type: warehouse.Int},
			{Name: "location", Type: warehouse.Text},
			{Name: "user_agent", Type: warehouse.Text},
		},
	}
}

// UsersTable is the user dimension.
func UsersTable() warehouse.Table {
	return warehouse.Table{
		Name: Users,
		Columns: []warehouse.Column{
			{Name: "user_id", Type: warehouse.Int, PrimaryKey: true},
			{Name: "first_name", Type: warehouse.Text},
			{Name: "last_name", Type: warehouse.Text},
			{Name: "gender", Type: warehouse.Text},
			{Name: "level", Type: warehouse.Text},
		},
	}
}

// SongsTable is the song dimension.
func SongsTable(references bool) warehouse.Table {
	t := warehouse.Table{
		Name: Songs,
		Columns: []warehouse.Column{
			{Name: "song_id", Type: warehouse.Text, PrimaryKey: true},
			{Name: "title", Type: warehouse.Text},
			{Name: "artist_id", Type: warehouse.Text},
			{Name: "year", Type: warehouse.SmallInt},
			{Name: "duration", Type: warehouse.Numeric},
		},
	}
	if references {
		t.Columns[2].References = "artists(artist_id)"
	}
	return t
}

// ArtistsTable is the artist dimension.
func ArtistsTable() warehouse.Table {
	return warehouse.Table{
		Name: Artists,
		Columns: []warehouse.Column{
			{Name: "artist_id", Type: warehouse.Text, PrimaryKey: true},
			{Name: "name", Type: warehouse.Text},
			{Name: "location", Type: warehouse.Text},
			{Name: "latitude", Type: warehouse.Numeric},
			{Name: "longitude", Type: warehouse.Numeric},
		},
	}
}

// TimeTable is the time dimension. The row-wise job stores the weekday as a
// number (Monday=0), the warehouse job as the day name.
func TimeTable(weekday warehouse.Type) warehouse.Table {
	return warehouse.Table{
		Name: Time,
		Columns: []warehouse.Column{
			{Name: "start_time", Type: warehouse.Timestamp, PrimaryKey: true},
			{Name: "hour", Type: warehouse.SmallInt},
			{Name: "day", Type: warehouse.SmallInt},
			{Name: "week", Type: warehouse.SmallInt},
			{Name: "month", Type: warehouse.SmallInt},
			{Name: "year", Type: warehouse.SmallInt},
			{Name: "weekday", Type: weekday},
		},
	}
}

// StagingEventsTable receives raw log events. Column order follows the
// JSONPaths file of the log dataset.
func StagingEventsTable() warehouse.Table {
	return warehouse.Table{
		Name: StagingEvents,
		Columns: []warehouse.Column{
			{Name: "artist", Type: warehouse.Text},
			{Name: "auth", Type: warehouse.Text},
			{Name: "firstName", Type: warehouse.Text},
			{Name: "gender", Type: warehouse.Text},
			{Name: "itemInSession", Type: warehouse.SmallInt},
			{Name: "lastName", Type: warehouse.Text},
			{Name: "length", Type: warehouse.Numeric},
			{Name: "level", Type: warehouse.Text},
			{Name: "location", Type: warehouse.Text},
			{Name: "method", Type: warehouse.Text},
			{Name: "page", Type: warehouse.Text},
			{Name: "registration", Type: warehouse.Numeric},
			{Name: "sessionId", Type: warehouse.Int},
			{Name: "song", Type: warehouse.Text},
			{Name: "status", Type: warehouse.Int},
			{Name: "ts", Type: warehouse.Timestamp},
			{Name: "userAgent", Type: warehouse.Text},
			{Name: "userId", Type: warehouse.Int},
		},
	}
}

// StagingSongsTable receives raw song metadata.
func StagingSongsTable() warehouse.Table {
	return warehouse.Table{
		Name: StagingSongs,
		Columns: []warehouse.Column{
			{Name: "artist_id", Type: warehouse.Text},
			{Name: "artist_latitude", Type: warehouse.Numeric},
			{Name: "artist_location", Type: warehouse.Text},
			{Name: "artist_longitude", Type: warehouse.Numeric},
			{Name: "artist_name", Type: warehouse.Text},
			{Name: "duration", Type: warehouse.Numeric},
			{Name: "num_songs", Type: warehouse.SmallInt},
			{Name: "song_id", Type: warehouse.Text},
			{Name: "title", Type: warehouse.Text},
			{Name: "year", Type: warehouse.SmallInt},
		},
	}
}

// SparkifyTables is the star schema of the row-wise Postgres job, in creation
// order.
func SparkifyTables() []warehouse.Table {
	return []warehouse.Table{
		SongplaysTable(false),
		UsersTable(),
		SongsTable(false),
		ArtistsTable(),
		TimeTable(warehouse.SmallInt),
	}
}

// SparkifyWarehouseTables is the staging area plus star schema of the
// warehouse job. Dimensions come first so that the informal references
// resolve.
func SparkifyWarehouseTables() []warehouse.Table {
	return append(SparkifyStagingTables(),
		UsersTable(),
		ArtistsTable(),
		SongsTable(true),
		TimeTable(warehouse.Text),
		SongplaysTable(true),
	)
}

// SparkifyStagingTables is the staging area the warehouse job copies raw
// files into.
func SparkifyStagingTables() []warehouse.Table {
	return []warehouse.Table{
		StagingEventsTable(),
		StagingSongsTable(),
	}
}
