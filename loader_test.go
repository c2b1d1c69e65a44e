package dwloader

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"go.nownabe.dev/dwloader/warehouse"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := warehouse.Open(context.Background(), warehouse.SQLite, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

var usersTable = warehouse.Table{
	Name: "users",
	Columns: []warehouse.Column{
		{Name: "user_id", Type: warehouse.Int, PrimaryKey: true},
		{Name: "first_name", Type: warehouse.Text},
		{Name: "level", Type: warehouse.Text},
	},
}

func queryUsers(t *testing.T, db *sql.DB) [][]string {
	t.Helper()

	rows, err := db.Query("SELECT user_id, COALESCE(first_name, '<null>'), level FROM users ORDER BY user_id")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()

	got := [][]string{}
	for rows.Next() {
		var id int
		var name, level string
		if err := rows.Scan(&id, &name, &level); err != nil {
			t.Fatal(err)
		}
		got = append(got, []string{fmt.Sprint(id), name, level})
	}

	return got
}

func TestSQLLoader(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	l := NewSQLLoader(db, warehouse.SQLite, usersTable, &warehouse.Conflict{
		Keys:   []string{"user_id"},
		Update: []string{"level"},
	})
	l.CreateTable = true

	if err := l.Load(ctx, [][]string{
		{"10", "Sylvie", "free"},
		{"8", "", "free"},
	}); err != nil {
		t.Fatal(err)
	}

	if err := l.Load(ctx, [][]string{{"10", "Sylvie", "paid"}}); err != nil {
		t.Fatal(err)
	}

	want := [][]string{
		{"8", "<null>", "free"},
		{"10", "Sylvie", "paid"},
	}
	if diff := cmp.Diff(want, queryUsers(t, db)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLLoader_chunks(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	if err := warehouse.CreateTables(ctx, db, warehouse.SQLite, usersTable); err != nil {
		t.Fatal(err)
	}

	// 3 columns per row stay under the bind limit only when split.
	n := warehouse.SQLite.MaxParams()/3 + 10
	records := make([][]string, n)
	for i := range records {
		records[i] = []string{fmt.Sprint(i), "u", "free"}
	}

	if err := NewSQLLoader(db, warehouse.SQLite, usersTable, nil).Load(ctx, records); err != nil {
		t.Fatal(err)
	}

	count, err := warehouse.QueryInt(ctx, db, "SELECT COUNT(*) FROM users")
	if err != nil {
		t.Fatal(err)
	}
	if count != int64(n) {
		t.Errorf("expected %d rows, got %d", n, count)
	}
}

func TestSQLLoader_rollback(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	if err := warehouse.CreateTables(ctx, db, warehouse.SQLite, usersTable); err != nil {
		t.Fatal(err)
	}

	err := NewSQLLoader(db, warehouse.SQLite, usersTable, nil).Load(ctx, [][]string{
		{"1", "a", "free"},
		{"two", "b", "free"},
	})
	if err == nil {
		t.Fatal("expected error but no error occurred")
	}

	if got := queryUsers(t, db); len(got) != 0 {
		t.Errorf("expected no rows after failed load, got %v", got)
	}
}

func TestLoader_WithDB(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	if err := warehouse.CreateTables(ctx, db, warehouse.SQLite, usersTable); err != nil {
		t.Fatal(err)
	}

	loader, err := New(WithLogger(zerolog.Nop()), WithDB(db, warehouse.SQLite))
	if err != nil {
		t.Fatal(err)
	}
	defer loader.Close()

	loader.MustAddHandler(ctx, &Handler{
		Name:      "users",
		Pattern:   regexp.MustCompile(`log_data/.+\.json$`),
		Parser:    JSONParser("userId", "firstName", "level"),
		Table:     usersTable,
		Conflict:  &warehouse.Conflict{Keys: []string{"user_id"}},
		Extractor: newTestExtractor(),
	})

	src := strings.Join([]string{
		`{"userId": 26, "firstName": "Ryan", "level": "free"}`,
		`{"userId": 26, "firstName": "Ryan", "level": "free"}`,
		`{"userId": 2, "firstName": "Jizelle", "level": "free"}`,
	}, "\n")

	e := Event{Name: "log_data/2018/11/2018-11-01-events.json", source: bytes.NewBufferString(src)}
	if err := loader.Handle(ctx, e); err != nil {
		t.Fatal(err)
	}

	want := [][]string{
		{"2", "Jizelle", "free"},
		{"26", "Ryan", "free"},
	}
	if diff := cmp.Diff(want, queryUsers(t, db)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestBigQuerySchema(t *testing.T) {
	t.Parallel()

	table := warehouse.Table{
		Name: "songplays",
		Columns: []warehouse.Column{
			{Name: "songplay_id", Type: warehouse.Int, Identity: true, PrimaryKey: true},
			{Name: "start_time", Type: warehouse.Timestamp, NotNull: true},
			{Name: "duration", Type: warehouse.Numeric},
			{Name: "level", Type: warehouse.Text},
		},
	}

	s := BigQuerySchema(table)

	got := []string{}
	for _, f := range s {
		got = append(got, fmt.Sprintf("%s:%s:%t", f.Name, f.Type, f.Required))
	}

	want := []string{
		"start_time:TIMESTAMP:true",
		"duration:NUMERIC:false",
		"level:STRING:false",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("schema mismatch (-want +got):\n%s", diff)
	}
}
