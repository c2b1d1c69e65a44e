package capstone

import (
	"context"

	"github.com/rs/zerolog/log"

	"go.nownabe.dev/dwloader/quality"
	"go.nownabe.dev/dwloader/schema"
	"go.nownabe.dev/dwloader/warehouse"
)

// MaxDepartureBeforeArrival is the share of immigration records allowed to
// depart before they arrive.
const MaxDepartureBeforeArrival = 0.01

// QC checks every capstone table was populated and that few immigration
// records have inconsistent dates.
func QC(ctx context.Context, db warehouse.Execer) error {
	lg := log.Ctx(ctx)

	lg.Info().Msg("Ensuring all tables have been populated...")

	tables := []string{
		schema.ImmigrationBase,
		schema.Temperatures,
		schema.Demographics,
		schema.Airports,
		schema.ImmigrantStayLengthByState,
		schema.ImmigrantsByCity,
		schema.ImmigrantsByState,
	}

	checks := make([]quality.Check, 0, len(tables))
	for _, t := range tables {
		checks = append(checks, quality.NotEmpty(t))
	}
	if err := quality.Run(ctx, db, checks...); err != nil {
		return err
	}

	lg.Info().Msg("Ensuring less than 1% of departures are listed as after arrivals...")

	err := quality.Run(ctx, db, quality.RatioBelow(
		schema.ImmigrationBase,
		"departure_date < arrival_date",
		MaxDepartureBeforeArrival,
	))
	if err != nil {
		return err
	}

	lg.Info().Msg("Check successful!")

	return nil
}
