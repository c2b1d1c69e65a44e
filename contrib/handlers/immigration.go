package handlers

import (
	"context"
	"regexp"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader"
	"go.nownabe.dev/dwloader/schema"
	"go.nownabe.dev/dwloader/warehouse"
)

// immigrationColumns maps source columns of the I-94 dataset to the leading
// columns of the immigration table.
var immigrationColumns = []struct {
	source  string
	integer bool
}{
	{"cicid", true},    // immigrant_id
	{"i94yr", true},    // year
	{"i94mon", true},   // month
	{"i94cit", true},   // country_of_citizenship_code
	{"i94res", true},   // country_of_residence_code
	{"i94port", false}, // arrival_port_code
	{"arrdate", true},  // arrival_date
	{"depdate", true},  // departure_date
	{"i94mode", true},  // arrival_mode_code
	{"airline", false}, // airline
	{"fltno", false},   // flight_number
	{"i94addr", false}, // state_settled_code
	{"i94bir", true},   // age
	{"biryear", true},  // birth_year
	{"i94visa", true},  // visa_code
	{"visatype", false},
	{"gender", false},
}

const (
	imCitizenship = 3
	imResidence   = 4
	imPort        = 5
	imArrival     = 6
	imDeparture   = 7
	imMode        = 8
	imState       = 11
	imVisa        = 14
)

// Immigration builds a handler loading I-94 arrival records. SAS codes are
// labelled with codes, SAS dates become timestamps and the arrival port is
// split into city and state.
func Immigration(name, pattern string, codes *SASCodes, n dwloader.Notifier) *dwloader.Handler {
	projector := func(ctx context.Context, r []string) ([]string, error) {
		h, err := header(ctx)
		if err != nil {
			return nil, err
		}

		out := make([]string, 0, len(immigrationColumns)+8)
		for _, c := range immigrationColumns {
			v := h.Get(r, c.source)
			if c.integer {
				v, err = NormalizeInt(v)
				if err != nil {
					log.Ctx(ctx).Warn().Msgf("Type casting failed for column: %s", c.source)
					return nil, xerrors.Errorf("column %s: %w", c.source, err)
				}
			}
			out = append(out, v)
		}

		for _, i := range []int{imArrival, imDeparture} {
			if out[i] == "" {
				continue
			}
			t, err := SASDate(out[i])
			if err != nil {
				return nil, err
			}
			out[i] = t.Format(warehouse.TimestampLayout)
		}

		port := codes.Ports[out[imPort]]
		city, state := ArrivalPort(port)

		return append(out,
			lookupInt(codes.Countries, out[imCitizenship]),
			lookupInt(codes.Countries, out[imResidence]),
			port,
			lookupInt(codes.ArrivalModes, out[imMode]),
			codes.States[out[imState]],
			lookupInt(codes.Visas, out[imVisa]),
			city,
			state,
		), nil
	}

	preprocessor := func(ctx context.Context, e dwloader.Event) (context.Context, error) {
		log.Ctx(ctx).Info().Msgf("Fetching data from: %s", e.FullPath())
		return ctx, nil
	}

	return &dwloader.Handler{
		Name:      name,
		Pattern:   regexp.MustCompile(pattern),
		HasHeader: true,

		Parser:       dwloader.ParquetParser(),
		Preprocessor: preprocessor,
		Projector:    projector,
		Notifier:     n,

		Table: schema.ImmigrationTable(),
	}
}
