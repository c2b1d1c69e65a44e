// Package operators holds the tasks of the warehouse DAG: staging from S3,
// loading facts and dimensions with INSERT..SELECT, and quality checks.
package operators

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader/quality"
	"go.nownabe.dev/dwloader/warehouse"
)

// StageToRedshift empties a staging table and copies JSON files from S3 into
// it.
type StageToRedshift struct {
	DB      warehouse.Execer
	Dialect warehouse.Dialect
	Table   string
	S3URL   string

	// Region defaults to warehouse.DefaultRegion.
	Region string

	// JSONSchema is a JSONPaths URI or "auto".
	JSONSchema string

	IAMRoleARN string
	TimeFormat string
}

// Execute runs TRUNCATE then COPY.
func (o *StageToRedshift) Execute(ctx context.Context) error {
	l := log.Ctx(ctx)

	if o.S3URL == "" {
		return xerrors.Errorf("no source for %s", o.Table)
	}

	l.Info().Msgf("Clearing data from destination Redshift table %s", o.Table)
	if err := warehouse.RunAll(ctx, o.DB, o.Dialect.Truncate(o.Table)); err != nil {
		return xerrors.Errorf("failed to clear %s: %w", o.Table, err)
	}

	stmt := warehouse.CopyStatement{
		Table:      o.Table,
		From:       o.S3URL,
		Region:     o.Region,
		IAMRole:    o.IAMRoleARN,
		JSONPaths:  o.JSONSchema,
		TimeFormat: o.TimeFormat,
	}

	l.Info().Msgf("Copying data from %s to Redshift table %s", o.S3URL, o.Table)
	if err := warehouse.RunAll(ctx, o.DB, stmt.SQL()); err != nil {
		return xerrors.Errorf("failed to copy into %s: %w", o.Table, err)
	}

	return nil
}

// LoadFact appends the result of a SELECT to a fact table.
type LoadFact struct {
	DB    warehouse.Execer
	Table string

	// Columns of Table the SELECT fills. All columns when empty.
	Columns []string
	SQL     string
}

// Execute runs INSERT INTO Table SQL.
func (o *LoadFact) Execute(ctx context.Context) error {
	log.Ctx(ctx).Info().Msgf("Loading fact table %s", o.Table)

	if err := warehouse.RunAll(ctx, o.DB, insertSelect(o.Table, o.Columns, o.SQL)); err != nil {
		return xerrors.Errorf("failed to load fact table %s: %w", o.Table, err)
	}

	return nil
}

// LoadDimension replaces or appends to a dimension table.
type LoadDimension struct {
	DB      warehouse.Execer
	Dialect warehouse.Dialect
	Table   string
	Columns []string
	SQL     string

	// Append keeps existing rows. Otherwise the table is emptied first.
	Append bool
}

// Execute runs TRUNCATE unless Append, then INSERT INTO Table SQL.
func (o *LoadDimension) Execute(ctx context.Context) error {
	l := log.Ctx(ctx)

	stmts := []string{}
	if !o.Append {
		l.Info().Msgf("Clearing dimension table %s", o.Table)
		stmts = append(stmts, o.Dialect.Truncate(o.Table))
	}
	stmts = append(stmts, insertSelect(o.Table, o.Columns, o.SQL))

	l.Info().Msgf("Loading dimension table %s", o.Table)
	if err := warehouse.RunAll(ctx, o.DB, stmts...); err != nil {
		return xerrors.Errorf("failed to load dimension table %s: %w", o.Table, err)
	}

	return nil
}

// DataQuality checks that every table has rows and then that none has
// duplicate rows.
type DataQuality struct {
	DB     warehouse.Execer
	Tables []string
}

// Execute runs the checks and returns the first failure.
func (o *DataQuality) Execute(ctx context.Context) error {
	checks := make([]quality.Check, 0, len(o.Tables)*2)
	for _, t := range o.Tables {
		checks = append(checks, quality.NotEmpty(t))
	}
	for _, t := range o.Tables {
		checks = append(checks, quality.NoDuplicates(t))
	}

	return quality.Run(ctx, o.DB, checks...)
}

// Noop marks the start or end of a DAG.
type Noop struct{}

// Execute does nothing.
func (Noop) Execute(context.Context) error {
	return nil
}

func insertSelect(table string, columns []string, query string) string {
	stmt := "INSERT INTO " + table
	if len(columns) > 0 {
		stmt += " (" + strings.Join(columns, ", ") + ")"
	}
	return stmt + "\n" + strings.TrimSpace(query)
}
