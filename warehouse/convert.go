package warehouse

import (
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// TimestampLayout is the layout projectors use for timestamp cells.
const TimestampLayout = "2006-01-02 15:04:05.000"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ConvertValue converts the text cell s into a driver value for c.
// Empty cells are NULL.
func ConvertValue(c Column, s string) (any, error) {
	if s == "" {
		return nil, nil
	}

	switch c.Type {
	case Int, SmallInt, BigInt:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		// Integers often arrive as floats ("1.0") from JSON and parquet sources.
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) {
			return nil, xerrors.Errorf("column %s: %q is not an integer", c.Name, s)
		}
		return int64(f), nil
	case Float, Numeric:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, xerrors.Errorf("column %s: %q is not a number: %w", c.Name, s, err)
		}
		if math.IsNaN(f) {
			return nil, nil
		}
		return f, nil
	case Bool:
		b, err := strconv.ParseBool(strings.ToLower(s))
		if err != nil {
			return nil, xerrors.Errorf("column %s: %q is not a boolean: %w", c.Name, s, err)
		}
		return b, nil
	case Timestamp, Date:
		t, err := ParseTime(s)
		if err != nil {
			return nil, xerrors.Errorf("column %s: %w", c.Name, err)
		}
		return t, nil
	default:
		return s, nil
	}
}

// ParseTime parses s with the layouts cells are written in.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, xerrors.Errorf("%q is not a timestamp", s)
}

// ConvertRow converts row into driver values for cols.
func ConvertRow(cols []Column, row []string) ([]any, error) {
	if len(row) != len(cols) {
		return nil, xerrors.Errorf("row has %d cells but %d columns are expected", len(row), len(cols))
	}

	values := make([]any, len(row))
	for i, c := range cols {
		v, err := ConvertValue(c, row[i])
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	return values, nil
}
