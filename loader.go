package dwloader

import (
	"context"
	"database/sql"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader/warehouse"
)

// Loader loads projected data into a destination such as Postgres or BigQuery.
type Loader interface {
	Load(context.Context, [][]string) error
}

type txBeginner interface {
	BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
}

// SQLLoader inserts records into a relational table with multi-row INSERT
// statements. Records hold the table's non-identity columns in order; cells
// are converted to the column types and empty cells become NULL.
type SQLLoader struct {
	db       warehouse.Execer
	dialect  warehouse.Dialect
	table    warehouse.Table
	columns  []warehouse.Column
	conflict *warehouse.Conflict

	// CreateTable creates the table on the first load when it does not exist.
	CreateTable bool

	createOnce sync.Once
	createErr  error
}

// NewSQLLoader builds a loader for table. conflict may be nil.
func NewSQLLoader(db warehouse.Execer, dialect warehouse.Dialect, table warehouse.Table, conflict *warehouse.Conflict) *SQLLoader {
	return &SQLLoader{
		db:       db,
		dialect:  dialect,
		table:    table,
		columns:  table.InsertColumns(),
		conflict: conflict,
	}
}

// Load inserts records. With a *sql.DB all chunks commit together.
func (l *SQLLoader) Load(ctx context.Context, records [][]string) error {
	if len(records) == 0 {
		return nil
	}

	if l.CreateTable {
		l.createOnce.Do(func() {
			l.createErr = warehouse.CreateTables(ctx, l.db, l.dialect, l.table)
		})
		if l.createErr != nil {
			return xerrors.Errorf("failed to create table %s: %w", l.table.Name, l.createErr)
		}
	}

	if b, ok := l.db.(txBeginner); ok {
		tx, err := b.BeginTx(ctx, nil)
		if err != nil {
			return xerrors.Errorf("failed to begin transaction: %w", err)
		}

		if err := l.insert(ctx, tx, records); err != nil {
			_ = tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return xerrors.Errorf("failed to commit %s: %w", l.table.Name, err)
		}

		return nil
	}

	return l.insert(ctx, l.db, records)
}

func (l *SQLLoader) insert(ctx context.Context, db warehouse.Execer, records [][]string) error {
	names := make([]string, len(l.columns))
	for i, c := range l.columns {
		names[i] = c.Name
	}

	chunk := l.dialect.MaxParams() / len(l.columns)
	if chunk < 1 {
		chunk = 1
	}

	for start := 0; start < len(records); start += chunk {
		end := start + chunk
		if end > len(records) {
			end = len(records)
		}

		args := make([]any, 0, (end-start)*len(l.columns))
		for i, r := range records[start:end] {
			values, err := warehouse.ConvertRow(l.columns, r)
			if err != nil {
				return xerrors.Errorf("record %d for %s: %w", start+i, l.table.Name, err)
			}
			args = append(args, values...)
		}

		q := l.dialect.Insert(l.table.Name, names, end-start, l.conflict)
		if _, err := db.ExecContext(ctx, q, args...); err != nil {
			return xerrors.Errorf("failed to insert into %s: %w", l.table.Name, err)
		}

		log.Ctx(ctx).Debug().Str("table", l.table.Name).Msgf("inserted %d rows", end-start)
	}

	return nil
}
