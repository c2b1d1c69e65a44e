package config

import (
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader/warehouse"
)

// Job names the command a configuration is validated for.
type Job string

const (
	JobETL          Job = "sparkify etl"
	JobDWH          Job = "sparkify dwh"
	JobLake         Job = "sparkify lake"
	JobDAG          Job = "sparkify dag"
	JobCapstoneLoad Job = "capstone load"
	JobCapstoneQC   Job = "capstone qc"
	JobFile         Job = "file"
)

// Target selects where capstone and file data is loaded.
type Target string

const (
	TargetSQL      Target = "sql"
	TargetBigQuery Target = "bigquery"
)

// Validate checks the settings job needs.
func (c *Config) Validate(job Job, target Target) error {
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Concurrency < 1 {
		return xerrors.Errorf("concurrency must be positive: %d", c.Concurrency)
	}
	if c.Slack.Token != "" && c.Slack.Channel == "" {
		return xerrors.New("slack channel is required with a slack token")
	}

	switch job {
	case JobLake:
		if c.Lake.Input == "" || c.Lake.Output == "" {
			return xerrors.New("lake input and output are required")
		}
		return nil
	case JobCapstoneLoad, JobFile:
		if target == TargetBigQuery {
			if c.BigQuery.Project == "" || c.BigQuery.Dataset == "" {
				return xerrors.New("bigquery project and dataset are required")
			}
			return nil
		}
	case JobETL, JobDWH, JobDAG, JobCapstoneQC:
	default:
		return xerrors.Errorf("unknown job %q", job)
	}

	d, err := c.Database.Dialect()
	if err != nil {
		return err
	}
	if d == warehouse.BigQuery {
		return xerrors.Errorf("%s needs a SQL database, not bigquery", job)
	}
	if _, err := c.Database.ConnString(); err != nil {
		return err
	}
	if c.Database.DSN == "" && d != warehouse.SQLite && (c.Database.Host == "" || c.Database.Name == "") {
		return xerrors.New("database host and name are required")
	}

	return nil
}
