// Package quality runs data-quality checks against loaded tables. A failing
// check is an error.
package quality

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader/warehouse"
)

// Check inspects a table and returns an error when the data is bad.
type Check interface {
	Name() string
	Run(context.Context, warehouse.Execer) error
}

// CheckError describes a failed check.
type CheckError struct {
	Check  string
	Table  string
	Detail string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("quality check %s failed on %s: %s", e.Check, e.Table, e.Detail)
}

// Run runs checks in order and stops at the first failure.
func Run(ctx context.Context, db warehouse.Execer, checks ...Check) error {
	l := log.Ctx(ctx)

	for _, c := range checks {
		l.Info().Msgf("running check %s", c.Name())
		if err := c.Run(ctx, db); err != nil {
			l.Error().Err(err).Msgf("check %s failed", c.Name())
			return err
		}
		l.Info().Msgf("check %s passed", c.Name())
	}

	return nil
}

type notEmpty struct {
	table string
}

// NotEmpty fails when table has no rows.
func NotEmpty(table string) Check {
	return &notEmpty{table: table}
}

func (c *notEmpty) Name() string {
	return "not_empty(" + c.table + ")"
}

func (c *notEmpty) Run(ctx context.Context, db warehouse.Execer) error {
	n, err := warehouse.QueryInt(ctx, db, "SELECT COUNT(*) FROM "+c.table)
	if err != nil {
		return xerrors.Errorf("failed to count %s: %w", c.table, err)
	}

	if n == 0 {
		return &CheckError{Check: "not_empty", Table: c.table, Detail: "table is empty"}
	}

	return nil
}

type noDuplicates struct {
	table string
}

// NoDuplicates fails when table contains identical rows.
func NoDuplicates(table string) Check {
	return &noDuplicates{table: table}
}

func (c *noDuplicates) Name() string {
	return "no_duplicates(" + c.table + ")"
}

func (c *noDuplicates) Run(ctx context.Context, db warehouse.Execer) error {
	distinct, err := warehouse.QueryInt(ctx, db, "SELECT COUNT(*) FROM (SELECT DISTINCT * FROM "+c.table+") AS d")
	if err != nil {
		return xerrors.Errorf("failed to count distinct rows of %s: %w", c.table, err)
	}

	all, err := warehouse.QueryInt(ctx, db, "SELECT COUNT(*) FROM "+c.table)
	if err != nil {
		return xerrors.Errorf("failed to count %s: %w", c.table, err)
	}

	log.Ctx(ctx).Info().Msgf("table '%s' has %d distinct rows and %d total rows", c.table, distinct, all)

	if distinct != all {
		return &CheckError{
			Check:  "no_duplicates",
			Table:  c.table,
			Detail: fmt.Sprintf("%d duplicate rows", all-distinct),
		}
	}

	return nil
}

type ratioBelow struct {
	table     string
	where     string
	threshold float64
}

// RatioBelow fails unless the share of rows in table matching where is
// strictly below threshold. An empty table fails.
func RatioBelow(table, where string, threshold float64) Check {
	return &ratioBelow{table: table, where: where, threshold: threshold}
}

func (c *ratioBelow) Name() string {
	return fmt.Sprintf("ratio_below(%s, %s, %g)", c.table, c.where, c.threshold)
}

func (c *ratioBelow) Run(ctx context.Context, db warehouse.Execer) error {
	all, err := warehouse.QueryInt(ctx, db, "SELECT COUNT(*) FROM "+c.table)
	if err != nil {
		return xerrors.Errorf("failed to count %s: %w", c.table, err)
	}

	if all == 0 {
		return &CheckError{Check: "ratio_below", Table: c.table, Detail: "table is empty"}
	}

	matched, err := warehouse.QueryInt(ctx, db, "SELECT COUNT(*) FROM "+c.table+" WHERE "+c.where)
	if err != nil {
		return xerrors.Errorf("failed to count %s where %s: %w", c.table, c.where, err)
	}

	ratio := float64(matched) / float64(all)
	if ratio >= c.threshold {
		return &CheckError{
			Check:  "ratio_below",
			Table:  c.table,
			Detail: fmt.Sprintf("%.4f of rows match %q, want < %g", ratio, c.where, c.threshold),
		}
	}

	return nil
}
