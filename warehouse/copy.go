package warehouse

import (
	"fmt"
	"strings"

	"go.nownabe.dev/dwloader/objstore"
)

// DefaultRegion is the region of the public source buckets.
const DefaultRegion = objstore.DefaultRegion

// CopyStatement is a Redshift COPY of JSON objects from S3 into a table.
type CopyStatement struct {
	Table   string
	From    string
	Region  string
	IAMRole string

	// JSONPaths is an S3 URI of a JSONPaths file, or "auto" when empty.
	JSONPaths string

	// TimeFormat such as "epochmillisecs" is applied to TIMESTAMP columns.
	TimeFormat string
}

// SQL renders the statement.
func (c CopyStatement) SQL() string {
	region := c.Region
	if region == "" {
		region = DefaultRegion
	}

	jsonPaths := c.JSONPaths
	if jsonPaths == "" {
		jsonPaths = "auto"
	}

	lines := []string{
		"COPY " + c.Table,
		"FROM " + quote(c.From),
		"REGION " + quote(region),
		"IAM_ROLE " + quote(c.IAMRole),
		"JSON " + quote(jsonPaths),
	}

	if c.TimeFormat != "" {
		lines = append(lines, fmt.Sprintf("TIMEFORMAT AS %s", quote(c.TimeFormat)))
	}

	return strings.Join(lines, "\n")
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
