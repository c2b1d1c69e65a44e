package warehouse

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	// Drivers for every Dialect.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Execer is the part of *sql.DB and *sql.Tx the loaders and checks use.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects to dsn with the driver of d and pings it.
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New("database dsn is required")
	}
	if d.Driver() == "" {
		return nil, xerrors.Errorf("%s cannot be opened as a database", d)
	}

	if d == SQLite && !strings.Contains(dsn, "_time_format") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_time_format=sqlite"
	}

	db, err := sql.Open(d.Driver(), dsn)
	if err != nil {
		return nil, xerrors.Errorf("failed to open %s database: %w", d, err)
	}

	// Each connection to an in-memory SQLite database is a different database.
	if d == SQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Errorf("failed to ping %s database: %w", d, err)
	}

	return db, nil
}

// RunAll executes stmts one after another and stops at the first error.
func RunAll(ctx context.Context, db Execer, stmts ...string) error {
	l := log.Ctx(ctx)

	for i, stmt := range stmts {
		l.Debug().Int("statement", i).Msg(compact(stmt))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return xerrors.Errorf("failed to execute %q: %w", firstLine(stmt), err)
		}
	}

	return nil
}

// CreateTables creates every table that does not exist yet.
func CreateTables(ctx context.Context, db Execer, d Dialect, tables ...Table) error {
	stmts := make([]string, len(tables))
	for i, t := range tables {
		stmts[i] = d.CreateTable(t, true)
	}
	return RunAll(ctx, db, stmts...)
}

// DropTables drops tables in reverse order.
func DropTables(ctx context.Context, db Execer, d Dialect, tables ...Table) error {
	stmts := make([]string, 0, len(tables))
	for i := len(tables) - 1; i >= 0; i-- {
		stmts = append(stmts, d.DropTable(tables[i].Name))
	}
	return RunAll(ctx, db, stmts...)
}

// QueryInt runs a query returning a single integer.
func QueryInt(ctx context.Context, db Execer, query string, args ...any) (int64, error) {
	var n sql.NullInt64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, xerrors.Errorf("failed to query %q: %w", firstLine(query), err)
	}
	return n.Int64, nil
}

func compact(stmt string) string {
	return strings.Join(strings.Fields(stmt), " ")
}

func firstLine(stmt string) string {
	s := compact(stmt)
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
