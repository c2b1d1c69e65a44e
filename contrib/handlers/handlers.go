// Package handlers provides pre-configured handlers for the Sparkify song and
// event logs and the capstone immigration datasets.
package handlers

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader"
)

type contextKey string

// Mean returns the arithmetic mean of the numeric cells in values. Empty and
// NaN cells are ignored; the mean of nothing is an empty cell.
func Mean(values []string) string {
	sum := 0.0
	n := 0

	for _, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) {
			continue
		}
		sum += f
		n++
	}

	if n == 0 {
		return ""
	}

	return formatFloat(sum / float64(n))
}

// Mode returns the most common non-empty cell in values. A tie has no single
// mode and yields an empty cell.
func Mode(values []string) string {
	counts := map[string]int{}
	for _, v := range values {
		if v != "" {
			counts[v]++
		}
	}

	mode := ""
	best := 0
	tie := false

	for v, c := range counts {
		switch {
		case c > best:
			mode, best, tie = v, c, false
		case c == best:
			tie = true
		}
	}

	if tie {
		return ""
	}

	return mode
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// NormalizeInt rewrites integral numbers such as "5748517.0" as "5748517".
// Empty and NaN cells become empty.
func NormalizeInt(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return s, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err == nil && math.IsNaN(f) {
		return "", nil
	}
	if err != nil || math.IsInf(f, 0) || f != float64(int64(f)) {
		return "", xerrors.Errorf("%q is not an integer", s)
	}

	return strconv.FormatInt(int64(f), 10), nil
}

// groups collects rows under a composite key keeping keys sorted.
type groups struct {
	keys []string
	rows map[string][][]string
}

func newGroups() *groups {
	return &groups{rows: map[string][][]string{}}
}

func (g *groups) add(key []string, row []string) {
	k := strings.Join(key, "\x00")
	if _, ok := g.rows[k]; !ok {
		g.keys = append(g.keys, k)
	}
	g.rows[k] = append(g.rows[k], row)
}

// each calls f for every group in key order.
func (g *groups) each(less func(a, b []string) bool, f func(key []string, rows [][]string)) {
	keys := make([][]string, len(g.keys))
	for i, k := range g.keys {
		keys[i] = strings.Split(k, "\x00")
	}

	sort.SliceStable(keys, func(i, j int) bool { return less(keys[i], keys[j]) })

	for _, k := range keys {
		f(k, g.rows[strings.Join(k, "\x00")])
	}
}

func column(rows [][]string, i int) []string {
	values := make([]string, len(rows))
	for j, r := range rows {
		values[j] = r[i]
	}
	return values
}

// header returns the header of the source or an error for handlers that
// need one.
func header(ctx context.Context) (dwloader.Header, error) {
	h, ok := dwloader.HeaderFrom(ctx)
	if !ok {
		return nil, xerrors.New("header row is not available")
	}
	return h, nil
}

// requireColumns fails when h lacks any of names.
func requireColumns(h dwloader.Header, names ...string) error {
	for _, n := range names {
		if h.Index(n) < 0 {
			return xerrors.Errorf("column %q not found in header", n)
		}
	}
	return nil
}
