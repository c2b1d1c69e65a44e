package sparkify_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader/dag"
	"go.nownabe.dev/dwloader/schema"
	"go.nownabe.dev/dwloader/sparkify"
	"go.nownabe.dev/dwloader/warehouse"
)

const testData = "testdata/data"

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := warehouse.Open(context.Background(), warehouse.SQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func queryRows(t *testing.T, db *sql.DB, q string) [][]string {
	t.Helper()

	rows, err := db.QueryContext(context.Background(), q)
	if err != nil {
		t.Fatalf("failed to query %q: %v", q, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		t.Fatal(err)
	}

	result := [][]string{}
	for rows.Next() {
		cells := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			t.Fatal(err)
		}

		row := make([]string, len(cols))
		for i, c := range cells {
			row[i] = c.String
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}

	return result
}

func assertRows(t *testing.T, db *sql.DB, q string, expected [][]string) {
	t.Helper()

	if diff := cmp.Diff(expected, queryRows(t, db, q)); diff != "" {
		t.Errorf("%s mismatch (-want +got):\n%s", q, diff)
	}
}

func assertStarSchema(t *testing.T, db *sql.DB, weekday string) {
	t.Helper()

	assertRows(t, db, "SELECT song_id, title, artist_id, year, duration FROM songs ORDER BY song_id", [][]string{
		{"SOMZWCG12A8C13C480", "I Didn't Mean To", "ARD7TVE1187B99BFB1", "0", "218.93179"},
		{"SOZCTXZ12AB0182364", "You Gotta Be", "AR5KOSW1187FB35FF4", "1994", "246.30812"},
	})

	assertRows(t, db, "SELECT artist_id, name, location FROM artists ORDER BY artist_id", [][]string{
		{"AR5KOSW1187FB35FF4", "Des'ree", "Dubai UAE"},
		{"ARD7TVE1187B99BFB1", "Casual", "California - LA"},
	})

	assertRows(t, db, "SELECT user_id, first_name, last_name, gender, level FROM users", [][]string{
		{"8", "Kaylee", "Summers", "F", "paid"},
	})

	assertRows(t, db, "SELECT hour, day, month, year, weekday FROM time ORDER BY start_time", [][]string{
		{"21", "1", "11", "2018", weekday},
		{"21", "1", "11", "2018", weekday},
	})

	assertRows(t, db, "SELECT user_id, level, song_id, artist_id, session_id FROM songplays ORDER BY start_time", [][]string{
		{"8", "free", "SOZCTXZ12AB0182364", "AR5KOSW1187FB35FF4", "139"},
		{"8", "paid", "", "", "139"},
	})
}

func TestRunETL(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	err := sparkify.RunETL(context.Background(), db, warehouse.SQLite, sparkify.ETLOptions{Data: testData, Concurrency: 4})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	assertStarSchema(t, db, "3")

	// Loading the same files again keeps dimensions unique.
	err = sparkify.RunETL(context.Background(), db, warehouse.SQLite, sparkify.ETLOptions{Data: testData})
	if err != nil {
		t.Fatalf("Unexpected error on second run: %v", err)
	}

	assertRows(t, db, "SELECT COUNT(*) FROM songs", [][]string{{"2"}})
	assertRows(t, db, "SELECT COUNT(*) FROM time", [][]string{{"2"}})
	assertRows(t, db, "SELECT COUNT(*) FROM songplays", [][]string{{"4"}})
}

func TestSQLSongLookup(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	if err := warehouse.RunAll(ctx, db,
		"CREATE TABLE songs (song_id TEXT, title TEXT, artist_id TEXT, duration NUMERIC)",
		"CREATE TABLE artists (artist_id TEXT, name TEXT)",
		"INSERT INTO songs VALUES ('S1', 'You Gotta Be', 'A1', 246.30812)",
		"INSERT INTO artists VALUES ('A1', 'Des''ree')",
	); err != nil {
		t.Fatal(err)
	}

	l := &sparkify.SQLSongLookup{DB: db, Dialect: warehouse.SQLite}

	cases := []struct {
		title, artist, duration string
		song, artistID          string
		e                       bool
	}{
		{title: "You Gotta Be", artist: "Des'ree", duration: "246.30812", song: "S1", artistID: "A1"},
		{title: "You Gotta Be", artist: "Des'ree", duration: "246.3"},
		{title: "Flat 55", artist: "Mr Oizo", duration: "144.03873"},
		{title: "", artist: "", duration: ""},
		{title: "x", artist: "y", duration: "long", e: true},
	}

	for _, c := range cases {
		song, artist, err := l.Lookup(ctx, c.title, c.artist, c.duration)
		if c.e {
			if err == nil {
				t.Errorf("Lookup(%q): expected error didn't occur", c.title)
			}
			continue
		}
		if err != nil {
			t.Errorf("Lookup(%q): unexpected error: %v", c.title, err)
		}
		if song != c.song || artist != c.artistID {
			t.Errorf("Lookup(%q) should be (%q, %q), but (%q, %q)", c.title, c.song, c.artistID, song, artist)
		}
	}
}

func TestRunWarehouse_Local(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	opts := sparkify.WarehouseOptions{Local: true, Data: testData, CreateTables: true}
	if err := sparkify.RunWarehouse(context.Background(), db, warehouse.SQLite, opts); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	assertRows(t, db, "SELECT COUNT(*) FROM staging_events", [][]string{{"3"}})
	assertRows(t, db, "SELECT COUNT(*) FROM staging_songs", [][]string{{"2"}})

	assertStarSchema(t, db, "Thursday")
}

func TestRunWarehouse_Modes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	err := sparkify.RunWarehouse(ctx, nil, warehouse.Redshift, sparkify.WarehouseOptions{InsertOnly: true, CopyOnly: true})
	if !xerrors.Is(err, sparkify.ErrConflictingModes) {
		t.Errorf("expected ErrConflictingModes but %v", err)
	}

	db := openTestDB(t)
	if err := warehouse.CreateTables(ctx, db, warehouse.SQLite, schema.SparkifyWarehouseTables()...); err != nil {
		t.Fatal(err)
	}

	// Staging only: the star schema stays empty.
	opts := sparkify.WarehouseOptions{Local: true, Data: testData, CopyOnly: true}
	if err := sparkify.RunWarehouse(ctx, db, warehouse.SQLite, opts); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	assertRows(t, db, "SELECT COUNT(*) FROM staging_events", [][]string{{"3"}})
	assertRows(t, db, "SELECT COUNT(*) FROM songplays", [][]string{{"0"}})

	// Inserts only: staging is not reloaded.
	if err := warehouse.RunAll(ctx, db, "DELETE FROM staging_songs"); err != nil {
		t.Fatal(err)
	}
	opts = sparkify.WarehouseOptions{Local: true, Data: testData, InsertOnly: true}
	if err := sparkify.RunWarehouse(ctx, db, warehouse.SQLite, opts); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	assertRows(t, db, "SELECT COUNT(*) FROM staging_songs", [][]string{{"0"}})
	assertRows(t, db, "SELECT COUNT(*) FROM songplays", [][]string{{"2"}})
}

func TestCopyQueries(t *testing.T) {
	t.Parallel()

	queries := sparkify.CopyQueries(sparkify.WarehouseOptions{IAMRole: "arn:aws:iam::123456789012:role/dwhRole"})

	expected := []string{
		"COPY staging_events\n" +
			"FROM 's3://udacity-dend/log_data'\n" +
			"REGION 'us-west-2'\n" +
			"IAM_ROLE 'arn:aws:iam::123456789012:role/dwhRole'\n" +
			"JSON 's3://udacity-dend/log_json_path.json'\n" +
			"TIMEFORMAT AS 'epochmillisecs'",
		"COPY staging_songs\n" +
			"FROM 's3://udacity-dend/song_data'\n" +
			"REGION 'us-west-2'\n" +
			"IAM_ROLE 'arn:aws:iam::123456789012:role/dwhRole'\n" +
			"JSON 'auto'",
	}

	if diff := cmp.Diff(expected, queries); diff != "" {
		t.Errorf("copy queries mismatch (-want +got):\n%s", diff)
	}
}

func TestTimeSelect(t *testing.T) {
	t.Parallel()

	for _, d := range []warehouse.Dialect{warehouse.Postgres, warehouse.Redshift, warehouse.MySQL, warehouse.SQLite} {
		q := sparkify.TimeSelect(d)
		if q == "" {
			t.Errorf("%s: empty query", d)
		}
	}

	if sparkify.TimeSelect(warehouse.Postgres) == sparkify.TimeSelect(warehouse.MySQL) {
		t.Error("postgres and mysql should differ")
	}
}

func TestTimeSelect_SQLite(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	err := warehouse.RunAll(context.Background(), db,
		"CREATE TABLE staging_events (page TEXT, ts TIMESTAMP)",
		`INSERT INTO staging_events VALUES
    ('NextSong', '2019-01-01 12:00:00'),
    ('NextSong', '2021-01-03 08:30:00'),
    ('Home', '2018-11-05 00:00:00')`,
	)
	if err != nil {
		t.Fatal(err)
	}

	rows := queryRows(t, db, sparkify.TimeSelect(warehouse.SQLite)+" ORDER BY ts")

	// hour, day, week, month, year, weekday
	expected := [][]string{
		{"12", "1", "1", "1", "2019", "Tuesday"},
		{"8", "3", "53", "1", "2021", "Sunday"},
	}

	actual := [][]string{}
	for _, r := range rows {
		actual = append(actual, r[1:])
	}

	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Errorf("time rows mismatch (-want +got):\n%s", diff)
	}
}

func TestNewDAG(t *testing.T) {
	t.Parallel()

	d := sparkify.NewDAG(sparkify.DAGOptions{Dialect: warehouse.Redshift})

	if err := d.Validate(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if d.Schedule != "0 * * * *" {
		t.Errorf("expected hourly schedule but %q", d.Schedule)
	}

	upstream := map[string][]string{}
	for _, n := range d.Nodes() {
		upstream[n.ID] = n.Upstream()
		if n.Retries != 3 {
			t.Errorf("%s should retry 3 times, but %d", n.ID, n.Retries)
		}
	}

	dims := []string{"Load_artist_dim_table", "Load_song_dim_table", "Load_time_dim_table", "Load_user_dim_table"}
	expected := map[string][]string{
		"Begin_execution":           {},
		"stage_events":              {"Begin_execution"},
		"stage_songs":               {"Begin_execution"},
		"Load_songplays_fact_table": {"stage_events", "stage_songs"},
		"Load_user_dim_table":       {"Load_songplays_fact_table"},
		"Load_song_dim_table":       {"Load_songplays_fact_table"},
		"Load_artist_dim_table":     {"Load_songplays_fact_table"},
		"Load_time_dim_table":       {"Load_songplays_fact_table"},
		"Run_data_quality_checks":   dims,
		"Stop_execution":            {"Run_data_quality_checks"},
	}

	if diff := cmp.Diff(expected, upstream); diff != "" {
		t.Errorf("dependencies mismatch (-want +got):\n%s", diff)
	}
}

func TestNewDAG_RunLocal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)

	if err := warehouse.CreateTables(ctx, db, warehouse.SQLite, schema.SparkifyWarehouseTables()...); err != nil {
		t.Fatal(err)
	}

	d := sparkify.NewDAG(sparkify.DAGOptions{DB: db, Dialect: warehouse.SQLite, Local: true, Data: testData})

	result, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for _, n := range d.Nodes() {
		if s := result.State(n.ID); s != dag.StateSuccess {
			t.Errorf("%s should be success, but %s", n.ID, s)
		}
	}

	assertStarSchema(t, db, "Thursday")

	// Dimensions are replaced on every run.
	if _, err := d.Run(ctx); err != nil {
		t.Fatalf("Unexpected error on second run: %v", err)
	}
	assertRows(t, db, "SELECT COUNT(*) FROM users", [][]string{{"1"}})
	assertRows(t, db, "SELECT COUNT(*) FROM songplays", [][]string{{"4"}})
}
