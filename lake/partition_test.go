package lake

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPartitions(t *testing.T) {
	t.Parallel()

	p := newPartitions[int]("year", "artist_id")
	p.add(1, "2018", "AR1")
	p.add(2, "", "AR1")
	p.add(3, "2018", "AR1")
	p.add(4, "2018", "a/b=c")

	expected := []string{
		"year=2018/artist_id=AR1",
		"year=2018/artist_id=a%2Fb%3Dc",
		"year=__HIVE_DEFAULT_PARTITION__/artist_id=AR1",
	}
	if diff := cmp.Diff(expected, p.keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]int{1, 3}, p.rows["year=2018/artist_id=AR1"]); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	if p.count() != 4 {
		t.Errorf("expected 4 rows but %d", p.count())
	}

	unpartitioned := newPartitions[int]()
	unpartitioned.add(1)
	if diff := cmp.Diff([]string{""}, unpartitioned.keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestEscapePartitionValue(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"California - LA": "California - LA",
		"100%":            "100%25",
		"a:b":             "a%3Ab",
		"tab\there":       "tab%09here",
	}

	for in, expected := range cases {
		if actual := escapePartitionValue(in); actual != expected {
			t.Errorf("escapePartitionValue(%q) should be %q, but %q", in, expected, actual)
		}
	}
}
