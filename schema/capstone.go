package schema

import (
	"fmt"

	"go.nownabe.dev/dwloader/warehouse"
)

// Capstone table names.
const (
	ImmigrationBase            = "immigration_base"
	Temperatures               = "temperatures"
	Demographics               = "demographics"
	Airports                   = "airports"
	ImmigrantStayLengthByState = "immigrant_stay_length_by_state"
	ImmigrantsByCity           = "immigrants_by_city"
	ImmigrantsByState          = "immigrants_by_state"
)

// ImmigrationTable holds cleaned I-94 arrival records.
func ImmigrationTable() warehouse.Table {
	text := func(n string) warehouse.Column { return warehouse.Column{Name: n, Type: warehouse.Text} }
	num := func(n string) warehouse.Column { return warehouse.Column{Name: n, Type: warehouse.BigInt} }

	return warehouse.Table{
		Name: ImmigrationBase,
		Columns: []warehouse.Column{
			num("immigrant_id"),
			num("year"),
			num("month"),
			num("country_of_citizenship_code"),
			num("country_of_residence_code"),
			text("arrival_port_code"),
			{Name: "arrival_date", Type: warehouse.Timestamp},
			{Name: "departure_date", Type: warehouse.Timestamp},
			num("arrival_mode_code"),
			text("airline"),
			text("flight_number"),
			text("state_settled_code"),
			num("age"),
			num("birth_year"),
			num("visa_code"),
			text("visa_type"),
			text("gender"),
			text("country_of_citizenship"),
			text("country_of_residence"),
			text("arrival_port"),
			text("arrival_mode"),
			text("state_settled"),
			text("visa_reason"),
			text("arrival_port_city"),
			text("arrival_port_state"),
		},
	}
}

// TemperaturesTable holds average monthly temperatures per US city.
func TemperaturesTable() warehouse.Table {
	return warehouse.Table{
		Name: Temperatures,
		Columns: []warehouse.Column{
			{Name: "state_code", Type: warehouse.Text},
			{Name: "city", Type: warehouse.Text},
			{Name: "month", Type: warehouse.SmallInt},
			{Name: "avg_temperature", Type: warehouse.Float},
			{Name: "avg_temperature_uncertainty", Type: warehouse.Float},
		},
	}
}

// DemographicsTable holds US city demographics, one row per city and race.
func DemographicsTable() warehouse.Table {
	return warehouse.Table{
		Name: Demographics,
		Columns: []warehouse.Column{
			{Name: "city", Type: warehouse.Text},
			{Name: "state", Type: warehouse.Text},
			{Name: "median_age", Type: warehouse.Float},
			{Name: "male_population", Type: warehouse.BigInt},
			{Name: "female_population", Type: warehouse.BigInt},
			{Name: "total_population", Type: warehouse.BigInt},
			{Name: "no_veterans", Type: warehouse.BigInt},
			{Name: "is_foreign_born", Type: warehouse.BigInt},
			{Name: "avg_household_size", Type: warehouse.Float},
			{Name: "state_code", Type: warehouse.Text},
			{Name: "race", Type: warehouse.Text},
			{Name: "count", Type: warehouse.BigInt},
		},
	}
}

// AirportsTable holds airport counts per US city.
func AirportsTable() warehouse.Table {
	return warehouse.Table{
		Name: Airports,
		Columns: []warehouse.Column{
			{Name: "state_code", Type: warehouse.Text},
			{Name: "city", Type: warehouse.Text},
			{Name: "no_airports", Type: warehouse.Int},
			{Name: "avg_elevation", Type: warehouse.Float},
			{Name: "most_common_type", Type: warehouse.Text},
		},
	}
}

// CapstoneTables are the tables loaded from source files.
func CapstoneTables() []warehouse.Table {
	return []warehouse.Table{
		ImmigrationTable(),
		TemperaturesTable(),
		DemographicsTable(),
		AirportsTable(),
	}
}

// Derived is a table built from loaded tables with CREATE TABLE AS.
type Derived struct {
	Name   string
	Select func(warehouse.Dialect) string
}

// CreateStatements drops and recreates the derived table.
func (d Derived) CreateStatements(dialect warehouse.Dialect) []string {
	return []string{
		dialect.DropTable(d.Name),
		fmt.Sprintf("CREATE TABLE %s AS %s", d.Name, d.Select(dialect)),
	}
}

// CapstoneDerived lists the aggregate tables built after loading.
func CapstoneDerived() []Derived {
	return []Derived{
		{
			Name: ImmigrantsByState,
			Select: func(warehouse.Dialect) string {
				return `
    SELECT state_settled_code AS state_code, COUNT(*) AS no_immigrants
    FROM immigration_base
    WHERE state_settled_code IS NOT NULL
    GROUP BY state_settled_code`
			},
		},
		{
			Name: ImmigrantsByCity,
			Select: func(warehouse.Dialect) string {
				return `
    SELECT arrival_port_state AS state_code, arrival_port_city AS city, COUNT(*) AS no_immigrants
    FROM immigration_base
    WHERE arrival_port_city IS NOT NULL
    GROUP BY arrival_port_state, arrival_port_city`
			},
		},
		{
			Name: ImmigrantStayLengthByState,
			Select: func(d warehouse.Dialect) string {
				return fmt.Sprintf(`
    SELECT state_settled_code AS state_code, AVG(%s) AS avg_stay_days
    FROM immigration_base
    WHERE state_settled_code IS NOT NULL
        AND departure_date IS NOT NULL
        AND departure_date >= arrival_date
    GROUP BY state_settled_code`, d.DaysBetween("arrival_date", "departure_date"))
			},
		},
	}
}
