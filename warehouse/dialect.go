package warehouse

import (
	"fmt"
	"strings"

	"golang.org/x/xerrors"
)

// Dialect selects the SQL flavour and driver of a target.
type Dialect string

// Supported dialects.
const (
	Postgres Dialect = "postgres"
	Redshift Dialect = "redshift"
	SQLite   Dialect = "sqlite"
	MySQL    Dialect = "mysql"

	// BigQuery only renders queries; it has no database/sql driver.
	BigQuery Dialect = "bigquery"
)

// ParseDialect validates name.
func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(name)); d {
	case Postgres, Redshift, SQLite, MySQL, BigQuery:
		return d, nil
	case "postgresql", "pgx":
		return Postgres, nil
	case "sqlite3":
		return SQLite, nil
	default:
		return "", xerrors.Errorf("unknown dialect %q", name)
	}
}

// Driver returns the database/sql driver name registered for d, or "" when
// there is none.
func (d Dialect) Driver() string {
	switch d {
	case SQLite:
		return "sqlite"
	case MySQL:
		return "mysql"
	case BigQuery:
		return ""
	default:
		return "pgx"
	}
}

// Placeholder returns the bind marker for the n-th (1-based) parameter.
func (d Dialect) Placeholder(n int) string {
	switch d {
	case SQLite, MySQL:
		return "?"
	default:
		return fmt.Sprintf("$%d", n)
	}
}

// MaxParams is the number of bind parameters one statement may carry.
func (d Dialect) MaxParams() int {
	switch d {
	case SQLite, Redshift:
		return 32766
	default:
		return 65535
	}
}

// Truncate empties table.
func (d Dialect) Truncate(table string) string {
	if d == SQLite {
		return "DELETE FROM " + table
	}
	return "TRUNCATE TABLE " + table
}

// DropTable drops table when it exists.
func (d Dialect) DropTable(table string) string {
	return "DROP TABLE IF EXISTS " + table
}

// DaysBetween renders the number of days from column from to column to.
func (d Dialect) DaysBetween(from, to string) string {
	switch d {
	case SQLite:
		return fmt.Sprintf("(julianday(%s) - julianday(%s))", to, from)
	case MySQL:
		return fmt.Sprintf("DATEDIFF(%s, %s)", to, from)
	case Redshift:
		return fmt.Sprintf("DATEDIFF(day, %s, %s)", from, to)
	case BigQuery:
		return fmt.Sprintf("(TIMESTAMP_DIFF(%s, %s, SECOND) / 86400)", to, from)
	default:
		return fmt.Sprintf("(EXTRACT(EPOCH FROM (%s - %s)) / 86400)", to, from)
	}
}

func (d Dialect) columnType(c Column) string {
	if c.Identity {
		switch d {
		case Postgres:
			if c.Type == BigInt {
				return "BIGSERIAL"
			}
			return "SERIAL"
		case Redshift:
			return "INT IDENTITY(0, 1)"
		case SQLite:
			return "INTEGER PRIMARY KEY AUTOINCREMENT"
		case MySQL:
			return "INT AUTO_INCREMENT"
		}
	}

	switch c.Type {
	case Int:
		if d == SQLite {
			return "INTEGER"
		}
		return "INT"
	case SmallInt:
		if d == SQLite {
			return "INTEGER"
		}
		return "SMALLINT"
	case BigInt:
		if d == SQLite {
			return "INTEGER"
		}
		return "BIGINT"
	case Float:
		switch d {
		case SQLite:
			return "REAL"
		case MySQL:
			return "DOUBLE"
		}
		return "DOUBLE PRECISION"
	case Numeric:
		if d == MySQL {
			return "DECIMAL(20, 6)"
		}
		return "NUMERIC"
	case Timestamp:
		if d == MySQL {
			return "DATETIME(3)"
		}
		return "TIMESTAMP"
	case Date:
		return "DATE"
	case Bool:
		return "BOOLEAN"
	default:
		// MySQL cannot index unbounded TEXT.
		if d == MySQL && c.PrimaryKey {
			return "VARCHAR(255)"
		}
		return "TEXT"
	}
}

// CreateTable renders the DDL for t.
func (d Dialect) CreateTable(t Table, ifNotExists bool) string {
	var b strings.Builder

	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(t.Name)
	b.WriteString(" (\n")

	inlinePK := false
	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		def := "    " + c.Name + " " + d.columnType(c)
		if c.Identity && d == SQLite {
			inlinePK = true
		}
		if c.NotNull {
			def += " NOT NULL"
		}
		if c.References != "" && d == Redshift {
			def += " REFERENCES " + c.References
		}
		defs = append(defs, def)
	}

	if pk := t.PrimaryKey(); len(pk) > 0 && !inlinePK {
		defs = append(defs, "    PRIMARY KEY ("+strings.Join(pk, ", ")+")")
	}

	b.WriteString(strings.Join(defs, ",\n"))
	b.WriteString("\n)")

	return b.String()
}

// Conflict is the policy for rows whose key already exists.
type Conflict struct {
	// Keys is the conflict target, usually the primary key.
	Keys []string

	// Update lists the columns overwritten by the incoming row. When empty the
	// incoming row is dropped.
	Update []string
}

// Insert renders a multi-row INSERT of rows rows into table.
// Redshift has no conflict clause; conflict is ignored there.
func (d Dialect) Insert(table string, columns []string, rows int, conflict *Conflict) string {
	var b strings.Builder

	verb := "INSERT INTO "
	if d == MySQL && conflict != nil && len(conflict.Update) == 0 {
		verb = "INSERT IGNORE INTO "
	}

	b.WriteString(verb)
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")

	n := 1
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(n))
			n++
		}
		b.WriteString(")")
	}

	if conflict != nil {
		b.WriteString(d.conflictClause(*conflict))
	}

	return b.String()
}

func (d Dialect) conflictClause(c Conflict) string {
	switch d {
	case Postgres, SQLite:
		target := ""
		if len(c.Keys) > 0 {
			target = " (" + strings.Join(c.Keys, ", ") + ")"
		}
		if len(c.Update) == 0 {
			return " ON CONFLICT" + target + " DO NOTHING"
		}
		sets := make([]string, len(c.Update))
		for i, col := range c.Update {
			sets[i] = col + " = EXCLUDED." + col
		}
		return " ON CONFLICT" + target + " DO UPDATE SET " + strings.Join(sets, ", ")
	case MySQL:
		if len(c.Update) == 0 {
			return ""
		}
		sets := make([]string, len(c.Update))
		for i, col := range c.Update {
			sets[i] = col + " = VALUES(" + col + ")"
		}
		return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	default:
		return ""
	}
}
