// Package capstone builds the immigration warehouse: I-94 arrivals, city
// temperatures, demographics and airports, plus aggregate tables and quality
// checks.
package capstone

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"go.nownabe.dev/dwloader/objstore"
)

// Default data locations.
const (
	DefaultLocalBase  = "./data"
	DefaultRemoteBase = "s3://p6-capstone/data"
)

// Source datasets under the base location.
const (
	SASData             = "sas_data"
	TemperatureFile     = "GlobalLandTemperaturesByCity.csv"
	EnrichedTemperature = "GlobalLandTemperaturesByCityEnriched.csv"
	DemographicsFile    = "us-cities-demographics.csv"
	AirportsFile        = "airport-codes_csv.csv"
)

// Extractor resolves dataset locations on the local disk or in S3.
type Extractor struct {
	Local      bool
	LocalBase  string
	RemoteBase string

	// Region of the remote base when it is in S3.
	Region string
}

// StoreOptions returns the options stores of the base are opened with.
func (e Extractor) StoreOptions() []objstore.Option {
	return []objstore.Option{objstore.WithRegion(e.Region)}
}

// Base returns the location datasets are read from.
func (e Extractor) Base() string {
	if e.Local {
		if e.LocalBase == "" {
			return DefaultLocalBase
		}
		return e.LocalBase
	}
	if e.RemoteBase == "" {
		return DefaultRemoteBase
	}
	return e.RemoteBase
}

// Location returns the location of a dataset.
func (e Extractor) Location(ctx context.Context, name string) string {
	loc := strings.TrimSuffix(e.Base(), "/") + "/" + name
	log.Ctx(ctx).Info().Msgf("Fetching data from: %s", loc)
	return loc
}
