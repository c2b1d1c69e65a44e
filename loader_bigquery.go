package dwloader

import (
	"bytes"
	"context"
	"encoding/csv"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader/warehouse"
)

// BigQueryLoader appends records to a BigQuery table with load jobs, creating
// the table from its schema when needed.
type BigQueryLoader struct {
	client *bigquery.Client
	table  *bigquery.Table
	schema bigquery.Schema
}

// NewBigQueryLoader builds a loader for table in project.dataset.
func NewBigQueryLoader(ctx context.Context, project, dataset string, table warehouse.Table) (*BigQueryLoader, error) {
	bq, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, xerrors.Errorf("failed to build bigquery client for %s: %w", project, err)
	}

	return &BigQueryLoader{
		client: bq,
		table:  bq.Dataset(dataset).Table(table.Name),
		schema: BigQuerySchema(table),
	}, nil
}

// BigQuerySchema maps t to a BigQuery schema. Identity columns are omitted.
func BigQuerySchema(t warehouse.Table) bigquery.Schema {
	cols := t.InsertColumns()
	schema := make(bigquery.Schema, len(cols))

	for i, c := range cols {
		f := &bigquery.FieldSchema{Name: c.Name, Required: c.NotNull}

		switch c.Type {
		case warehouse.Int, warehouse.SmallInt, warehouse.BigInt:
			f.Type = bigquery.IntegerFieldType
		case warehouse.Float:
			f.Type = bigquery.FloatFieldType
		case warehouse.Numeric:
			f.Type = bigquery.NumericFieldType
		case warehouse.Timestamp:
			f.Type = bigquery.TimestampFieldType
		case warehouse.Date:
			f.Type = bigquery.DateFieldType
		case warehouse.Bool:
			f.Type = bigquery.BooleanFieldType
		default:
			f.Type = bigquery.StringFieldType
		}

		schema[i] = f
	}

	return schema
}

// TODO: Make output format more efficient. e.g. gzip.
func (l *BigQueryLoader) Load(ctx context.Context, records [][]string) error {
	lg := log.Ctx(ctx)

	buf := &bytes.Buffer{}
	if err := csv.NewWriter(buf).WriteAll(records); err != nil {
		return xerrors.Errorf("failed to write csv: %w", err)
	}

	rs := bigquery.NewReaderSource(buf)
	rs.SourceFormat = bigquery.CSV
	rs.Schema = l.schema

	loader := l.table.LoaderFrom(rs)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = bigquery.WriteAppend

	job, err := loader.Run(ctx)
	if err != nil {
		return xerrors.Errorf("failed to run bigquery load job: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return xerrors.Errorf("failed to wait job: %w", err)
	}

	if status.Err() != nil {
		lg.Error().Msgf("failed to load csv: %v", status.Errors)
		return xerrors.Errorf("failed to load into %s: %w", l.table.FullyQualifiedName(), status.Err())
	}

	return nil
}

// Close releases the BigQuery client.
func (l *BigQueryLoader) Close() error {
	return l.client.Close()
}
