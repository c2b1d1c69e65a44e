package lake_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/parquet-go/parquet-go"

	"go.nownabe.dev/dwloader/lake"
	"go.nownabe.dev/dwloader/objstore"
)

func readParquet[T any](t *testing.T, name string) []T {
	t.Helper()

	f, err := os.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		t.Fatal(err)
	}

	rows, err := parquet.Read[T](f, st.Size())
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}

	return rows
}

func TestRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	out := t.TempDir()

	if err := lake.Run(ctx, lake.Options{Input: "testdata/data", Output: out, Concurrency: 2}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	keys, err := objstore.NewFileStore(out).List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	expectedKeys := []string{
		"artists/artist_id=AR5KOSW1187FB35FF4/part-00000.parquet",
		"artists/artist_id=ARD7TVE1187B99BFB1/part-00000.parquet",
		"songplays/year=2018/month=11/part-00000.parquet",
		"songs/year=0/artist_id=ARD7TVE1187B99BFB1/part-00000.parquet",
		"songs/year=1994/artist_id=AR5KOSW1187FB35FF4/part-00000.parquet",
		"time/year=2018/month=11/part-00000.parquet",
		"users/part-00000.parquet",
	}
	if diff := cmp.Diff(expectedKeys, keys); diff != "" {
		t.Fatalf("files mismatch (-want +got):\n%s", diff)
	}

	songs := readParquet[lake.Song](t, filepath.Join(out, "songs/year=1994/artist_id=AR5KOSW1187FB35FF4/part-00000.parquet"))
	if len(songs) != 1 || songs[0].SongID != "SOZCTXZ12AB0182364" || *songs[0].Duration != 246.30812 {
		t.Errorf("unexpected songs: %+v", songs)
	}

	artists := readParquet[lake.Artist](t, filepath.Join(out, "artists/artist_id=ARD7TVE1187B99BFB1/part-00000.parquet"))
	if len(artists) != 1 || *artists[0].Name != "Casual" || artists[0].Latitude != nil {
		t.Errorf("unexpected artists: %+v", artists)
	}

	times := readParquet[lake.Time](t, filepath.Join(out, "time/year=2018/month=11/part-00000.parquet"))
	if len(times) != 2 {
		t.Fatalf("expected 2 time rows but %d", len(times))
	}
	first := times[0]
	if !first.StartTime.Equal(time.Date(2018, 11, 1, 21, 1, 46, 0, time.UTC)) {
		t.Errorf("unexpected start_time %s", first.StartTime)
	}
	// 2018-11-01 is a Thursday in ISO week 44.
	if first.Hour != 21 || first.Day != 1 || first.Week != 44 || first.Weekday != 5 {
		t.Errorf("unexpected time row: %+v", first)
	}

	users := readParquet[lake.User](t, filepath.Join(out, "users/part-00000.parquet"))
	levels := []string{}
	for _, u := range users {
		levels = append(levels, *u.Level)
	}
	if diff := cmp.Diff([]string{"free", "paid"}, levels); diff != "" {
		t.Errorf("users mismatch (-want +got):\n%s", diff)
	}

	plays := readParquet[lake.Songplay](t, filepath.Join(out, "songplays/year=2018/month=11/part-00000.parquet"))
	if len(plays) != 2 {
		t.Fatalf("expected 2 songplays but %d", len(plays))
	}
	if plays[0].SongplayID != 0 || plays[1].SongplayID != 1 {
		t.Errorf("songplay ids should increase from 0: %d, %d", plays[0].SongplayID, plays[1].SongplayID)
	}
	if plays[0].SongID == nil || *plays[0].SongID != "SOZCTXZ12AB0182364" || *plays[0].ArtistID != "AR5KOSW1187FB35FF4" {
		t.Errorf("first play should match a song: %+v", plays[0])
	}
	if plays[1].SongID != nil {
		t.Errorf("second play should not match a song: %v", *plays[1].SongID)
	}
	if *plays[1].UserID != 8 || *plays[1].SessionID != 139 {
		t.Errorf("unexpected second play: %+v", plays[1])
	}
}

func TestRun_MissingInput(t *testing.T) {
	t.Parallel()

	err := lake.Run(context.Background(), lake.Options{Input: filepath.Join(t.TempDir(), "missing"), Output: t.TempDir()})
	if err == nil {
		t.Error("Expected error didn't occur")
	}
}

func TestRun_StartTimeSeconds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	in := t.TempDir()
	out := t.TempDir()

	song := `{"num_songs": 1, "artist_id": "AR5KOSW1187FB35FF4", "artist_name": "Des'ree", "song_id": "SOZCTXZ12AB0182364", "title": "You Gotta Be", "duration": 246.30812, "year": 1994}`
	events := `{"artist":"Des'ree","firstName":"Kaylee","gender":"F","lastName":"Summers","level":"free","page":"NextSong","sessionId":139,"song":"You Gotta Be","ts":1541106106796,"userId":"8"}
{"artist":"Des'ree","firstName":"Kaylee","gender":"F","lastName":"Summers","level":"free","page":"NextSong","sessionId":139,"song":"You Gotta Be","ts":1541106106100,"userId":"8"}
`

	s := objstore.NewFileStore(in)
	if err := s.Put(ctx, "song_data/A/song.json", strings.NewReader(song)); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "log_data/2018/11/events.json", strings.NewReader(events)); err != nil {
		t.Fatal(err)
	}

	if err := lake.Run(ctx, lake.Options{Input: in, Output: out}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := time.Date(2018, 11, 1, 21, 1, 46, 0, time.UTC)

	times := readParquet[lake.Time](t, filepath.Join(out, "time/year=2018/month=11/part-00000.parquet"))
	if len(times) != 1 {
		t.Fatalf("plays within one second should share a time row, but %d rows", len(times))
	}
	if !times[0].StartTime.Equal(expected) {
		t.Errorf("unexpected start_time %s", times[0].StartTime)
	}

	plays := readParquet[lake.Songplay](t, filepath.Join(out, "songplays/year=2018/month=11/part-00000.parquet"))
	if len(plays) != 2 {
		t.Fatalf("expected 2 songplays but %d", len(plays))
	}
	for _, p := range plays {
		if !p.StartTime.Equal(expected) {
			t.Errorf("unexpected songplay start_time %s", p.StartTime)
		}
	}
}
