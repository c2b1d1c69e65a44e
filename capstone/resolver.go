package capstone

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
	"googlemaps.github.io/maps"

	"go.nownabe.dev/dwloader"
	"go.nownabe.dev/dwloader/contrib/handlers"
)

type reverseGeocoder interface {
	ReverseGeocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// GeocoderResolver finds states with the Google reverse geocoding API.
// Answers are cached per coordinate.
type GeocoderResolver struct {
	client reverseGeocoder

	mu    sync.Mutex
	cache map[[2]float64]string
}

// NewGeocoderResolver builds a resolver calling the API with apiKey.
func NewGeocoderResolver(apiKey string) (*GeocoderResolver, error) {
	if apiKey == "" {
		return nil, xerrors.New("google api key is required")
	}

	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, xerrors.Errorf("failed to create maps client: %w", err)
	}

	return newGeocoderResolver(c), nil
}

func newGeocoderResolver(c reverseGeocoder) *GeocoderResolver {
	return &GeocoderResolver{client: c, cache: map[[2]float64]string{}}
}

// State returns the short name of the first-level administrative area at the
// coordinates.
func (r *GeocoderResolver) State(ctx context.Context, city string, lat, lon float64) (string, error) {
	key := [2]float64{lat, lon}

	r.mu.Lock()
	state, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return state, nil
	}

	results, err := r.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:     &maps.LatLng{Lat: lat, Lng: lon},
		ResultType: []string{"administrative_area_level_1"},
	})
	if err != nil {
		return "", xerrors.Errorf("failed to reverse geocode %s (%v, %v): %w", city, lat, lon, err)
	}

	if len(results) > 0 && len(results[0].AddressComponents) > 0 {
		state = results[0].AddressComponents[0].ShortName
	} else {
		log.Ctx(ctx).Warn().Msgf("no state found for %s (%v, %v)", city, lat, lon)
	}

	r.mu.Lock()
	r.cache[key] = state
	r.mu.Unlock()

	return state, nil
}

// EnrichedResolver looks states up in a temperature dataset that was already
// enriched with a state_code column.
type EnrichedResolver struct {
	states map[string]string
}

// LoadEnrichedResolver reads a CSV with city, latitude, longitude and
// state_code columns. Coordinates may be signed degrees or use N/S/E/W
// suffixes. Column names are case-insensitive.
func LoadEnrichedResolver(ctx context.Context, r io.Reader) (*EnrichedResolver, error) {
	rows, err := dwloader.CSVParser()(ctx, r)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse enriched data: %w", err)
	}
	if len(rows) == 0 {
		return nil, xerrors.New("enriched data has no header")
	}

	h := make(dwloader.Header, len(rows[0]))
	for i, c := range rows[0] {
		h[i] = strings.ToLower(strings.TrimSpace(c))
	}

	for _, c := range []string{"city", "latitude", "longitude", "state_code"} {
		if h.Index(c) < 0 {
			return nil, xerrors.Errorf("enriched data has no %s column", c)
		}
	}

	er := &EnrichedResolver{states: map[string]string{}}

	for i, row := range rows[1:] {
		state := h.Get(row, "state_code")
		if state == "" {
			continue
		}

		lat, err := coordinate(h.Get(row, "latitude"))
		if err != nil {
			return nil, xerrors.Errorf("row %d: %w", i+1, err)
		}
		lon, err := coordinate(h.Get(row, "longitude"))
		if err != nil {
			return nil, xerrors.Errorf("row %d: %w", i+1, err)
		}

		er.states[enrichedKey(h.Get(row, "city"), lat, lon)] = state
	}

	return er, nil
}

// State returns the state recorded for the city at the coordinates.
func (r *EnrichedResolver) State(_ context.Context, city string, lat, lon float64) (string, error) {
	return r.states[enrichedKey(city, lat, lon)], nil
}

// Len returns the number of known cities.
func (r *EnrichedResolver) Len() int {
	return len(r.states)
}

func coordinate(s string) (float64, error) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return handlers.ParseCoordinate(s)
}

func enrichedKey(city string, lat, lon float64) string {
	return strings.ToUpper(city) + "|" + strconv.FormatFloat(lat, 'f', 2, 64) + "|" + strconv.FormatFloat(lon, 'f', 2, 64)
}
