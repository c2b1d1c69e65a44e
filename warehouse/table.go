// Package warehouse holds the SQL plumbing shared by every relational target:
// dialects, table definitions, DDL rendering and typed value conversion.
package warehouse

// Type is a logical column type rendered per dialect.
type Type int

// Column types.
const (
	Text Type = iota
	Int
	SmallInt
	BigInt
	Float
	Numeric
	Timestamp
	Date
	Bool
)

// Column describes one table column.
type Column struct {
	Name       string
	Type       Type
	PrimaryKey bool
	NotNull    bool

	// Identity makes the column an auto-generated surrogate key.
	Identity bool

	// References is an informal foreign key such as "users(user_id)". Only
	// dialects that accept unenforced constraints render it.
	References string
}

// Table is a named list of columns.
type Table struct {
	Name    string
	Columns []Column
}

// ColumnNames returns the names of all columns.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// InsertColumns returns the columns a loader supplies, skipping identities.
func (t Table) InsertColumns() []Column {
	cols := make([]Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Identity {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

// PrimaryKey returns the names of the primary key columns.
func (t Table) PrimaryKey() []string {
	keys := []string{}
	for _, c := range t.Columns {
		if c.PrimaryKey {
			keys = append(keys, c.Name)
		}
	}
	return keys
}

// Column looks a column up by name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}
