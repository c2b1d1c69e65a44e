package handlers

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.nownabe.dev/dwloader"
	"go.nownabe.dev/dwloader/schema"
)

// intermediate record of Airports
const (
	apState = iota
	apCity
	apID
	apElevation
	apType
)

// Airports builds a handler loading airport statistics of US cities: number of
// airports, mean elevation and the most common airport type, grouped by state
// and city.
func Airports(name, pattern string, n dwloader.Notifier) *dwloader.Handler {
	projector := func(ctx context.Context, r []string) ([]string, error) {
		h, err := header(ctx)
		if err != nil {
			return nil, err
		}

		if h.Get(r, "iso_country") != "US" {
			return nil, nil
		}

		// iso_region is "US-CA".
		parts := strings.SplitN(h.Get(r, "iso_region"), "-", 3)
		if len(parts) < 2 || parts[1] == "" {
			return nil, nil
		}

		city := strings.ToUpper(h.Get(r, "municipality"))
		if city == "" {
			return nil, nil
		}

		return []string{parts[1], city, h.Get(r, "ident"), h.Get(r, "elevation_ft"), h.Get(r, "type")}, nil
	}

	aggregator := func(_ context.Context, rs [][]string) ([][]string, error) {
		g := newGroups()
		for _, r := range rs {
			g.add([]string{r[apState], r[apCity]}, r)
		}

		out := [][]string{}
		g.each(lessStateCity, func(key []string, rows [][]string) {
			out = append(out, []string{
				key[0],
				key[1],
				strconv.Itoa(len(rows)),
				Mean(column(rows, apElevation)),
				Mode(column(rows, apType)),
			})
		})

		return out, nil
	}

	return &dwloader.Handler{
		Name:      name,
		Pattern:   regexp.MustCompile(pattern),
		HasHeader: true,

		Parser:     dwloader.CSVParser(),
		Projector:  projector,
		Aggregator: aggregator,
		Notifier:   n,

		Table: schema.AirportsTable(),
	}
}

func lessStateCity(a, b []string) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	return a[1] < b[1]
}
