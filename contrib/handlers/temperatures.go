package handlers

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader"
	"go.nownabe.dev/dwloader/schema"
)

// StateResolver finds the US state code of a city.
type StateResolver interface {
	// State returns "" when the state is unknown.
	State(ctx context.Context, city string, latitude, longitude float64) (string, error)
}

var coordinateRE = regexp.MustCompile(`^(\d{1,3}\.\d{1,2})([NSEW])$`)

// ParseCoordinate converts coordinates such as "42.59N" or "72.00W" into signed
// degrees.
func ParseCoordinate(s string) (float64, error) {
	m := coordinateRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, xerrors.Errorf("invalid coordinate %q", s)
	}

	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, xerrors.Errorf("invalid coordinate %q: %w", s, err)
	}

	if m[2] == "S" || m[2] == "W" {
		f = -f
	}

	return f, nil
}

// temperatureHistory is how far back from the latest record temperatures are
// averaged.
const temperatureHistory = 3 * 365 * 24 * time.Hour

// intermediate record of Temperatures
const (
	tmpDate = iota
	tmpAvg
	tmpUncertainty
	tmpCity
	tmpLatitude
	tmpLongitude
)

// Temperatures builds a handler loading average monthly temperatures of US
// cities over the latest three years of the dataset, grouped by state, city
// and month.
func Temperatures(name, pattern string, resolver StateResolver, n dwloader.Notifier) *dwloader.Handler {
	projector := func(ctx context.Context, r []string) ([]string, error) {
		h, err := header(ctx)
		if err != nil {
			return nil, err
		}

		if strings.ToUpper(h.Get(r, "Country")) != "UNITED STATES" {
			return nil, nil
		}

		if _, err := time.Parse("2006-01-02", h.Get(r, "dt")); err != nil {
			return nil, xerrors.Errorf("invalid date: %w", err)
		}

		return []string{
			h.Get(r, "dt"),
			h.Get(r, "AverageTemperature"),
			h.Get(r, "AverageTemperatureUncertainty"),
			strings.ToUpper(h.Get(r, "City")),
			h.Get(r, "Latitude"),
			h.Get(r, "Longitude"),
		}, nil
	}

	aggregator := func(ctx context.Context, rs [][]string) ([][]string, error) {
		if len(rs) == 0 {
			return rs, nil
		}

		var latest time.Time
		dates := make([]time.Time, len(rs))
		for i, r := range rs {
			dates[i], _ = time.Parse("2006-01-02", r[tmpDate])
			if dates[i].After(latest) {
				latest = dates[i]
			}
		}
		since := latest.Add(-temperatureHistory)

		g := newGroups()
		unresolved := 0

		for i, r := range rs {
			if !dates[i].After(since) {
				continue
			}

			lat, err := ParseCoordinate(r[tmpLatitude])
			if err != nil {
				return nil, err
			}
			lon, err := ParseCoordinate(r[tmpLongitude])
			if err != nil {
				return nil, err
			}

			state, err := resolver.State(ctx, r[tmpCity], lat, lon)
			if err != nil {
				return nil, xerrors.Errorf("failed to resolve state of %s: %w", r[tmpCity], err)
			}
			if state == "" {
				unresolved++
				continue
			}

			month := strconv.Itoa(int(dates[i].Month()))
			g.add([]string{state, r[tmpCity], month}, r)
		}

		if unresolved > 0 {
			log.Ctx(ctx).Warn().Msgf("%d records without state dropped", unresolved)
		}

		out := [][]string{}
		g.each(lessStateCityMonth, func(key []string, rows [][]string) {
			out = append(out, []string{
				key[0],
				key[1],
				key[2],
				Mean(column(rows, tmpAvg)),
				Mean(column(rows, tmpUncertainty)),
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

		Table: schema.TemperaturesTable(),
	}
}

func lessStateCityMonth(a, b []string) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	if a[1] != b[1] {
		return a[1] < b[1]
	}
	ma, _ := strconv.Atoi(a[2])
	mb, _ := strconv.Atoi(b[2])
	return ma < mb
}
