package handlers

import (
	"context"
	"regexp"
	"strings"

	"go.nownabe.dev/dwloader"
	"go.nownabe.dev/dwloader/schema"
)

// demographicColumns are the source columns in the order of the demographics
// table.
var demographicColumns = []string{
	"City",
	"State",
	"Median Age",
	"Male Population",
	"Female Population",
	"Total Population",
	"Number of Veterans",
	"Foreign-born",
	"Average Household Size",
	"State Code",
	"Race",
	"Count",
}

// Demographics builds a handler loading US city demographics from the
// semicolon separated dataset. City and state names are upper-cased.
func Demographics(name, pattern string, n dwloader.Notifier) *dwloader.Handler {
	projector := func(ctx context.Context, r []string) ([]string, error) {
		h, err := header(ctx)
		if err != nil {
			return nil, err
		}
		if err := requireColumns(h, demographicColumns...); err != nil {
			return nil, err
		}

		out := make([]string, len(demographicColumns))
		for i, c := range demographicColumns {
			out[i] = h.Get(r, c)
		}

		out[0] = strings.ToUpper(out[0])
		out[1] = strings.ToUpper(out[1])

		return out, nil
	}

	return &dwloader.Handler{
		Name:      name,
		Pattern:   regexp.MustCompile(pattern),
		HasHeader: true,

		Parser:    dwloader.CSVParserWithComma(';'),
		Projector: projector,
		Notifier:  n,

		Table: schema.DemographicsTable(),
	}
}
