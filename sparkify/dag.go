package sparkify

import (
	"database/sql"
	"time"

	"go.nownabe.dev/dwloader/dag"
	"go.nownabe.dev/dwloader/dag/operators"
	"go.nownabe.dev/dwloader/schema"
	"go.nownabe.dev/dwloader/warehouse"
)

// DAGOptions configures NewDAG.
type DAGOptions struct {
	DB      *sql.DB
	Dialect warehouse.Dialect

	// Schedule defaults to hourly.
	Schedule string

	// AppendDimensions keeps dimension rows between runs.
	AppendDimensions bool

	// Local stages files from Data instead of COPY from S3.
	Local bool
	Data  string

	LogData     string
	LogJSONPath string
	SongData    string
	Region      string
	IAMRole     string
}

// NewDAG builds the hourly pipeline: stage events and songs, load the fact
// table, load the four dimensions and check the result.
func NewDAG(o DAGOptions) *dag.DAG {
	wo := WarehouseOptions{
		LogData:     o.LogData,
		LogJSONPath: o.LogJSONPath,
		SongData:    o.SongData,
		Region:      o.Region,
		IAMRole:     o.IAMRole,
		Data:        o.Data,
	}
	wo.setDefaults()

	d := dag.New("udac_example_dag", dag.DefaultArgs{
		Owner:      "udacity",
		Retries:    3,
		RetryDelay: 5 * time.Minute,
	})
	d.Description = "Load and transform data in Redshift"
	d.Schedule = o.Schedule
	if d.Schedule == "" {
		d.Schedule = "0 * * * *"
	}

	begin := d.Add("Begin_execution", operators.Noop{})

	var stageEvents, stageSongs dag.Operator
	if o.Local {
		stages := localStages(o.DB, o.Dialect, wo.Data)
		stageEvents, stageSongs = stages[0], stages[1]
	} else {
		stageEvents = &operators.StageToRedshift{
			DB:         o.DB,
			Dialect:    o.Dialect,
			Table:      schema.StagingEvents,
			S3URL:      wo.LogData,
			Region:     wo.Region,
			JSONSchema: wo.LogJSONPath,
			IAMRoleARN: wo.IAMRole,
			TimeFormat: "epochmillisecs",
		}
		stageSongs = &operators.StageToRedshift{
			DB:         o.DB,
			Dialect:    o.Dialect,
			Table:      schema.StagingSongs,
			S3URL:      wo.SongData,
			Region:     wo.Region,
			IAMRoleARN: wo.IAMRole,
		}
	}

	stages := []*dag.Node{
		d.Add("stage_events", stageEvents),
		d.Add("stage_songs", stageSongs),
	}

	queries := InsertQueries(o.Dialect)

	fact := d.Add("Load_songplays_fact_table", &operators.LoadFact{
		DB:      o.DB,
		Table:   queries[0].Table,
		Columns: queries[0].Columns,
		SQL:     queries[0].Select,
	})

	dimensions := []*dag.Node{}
	for _, q := range queries[1:] {
		id := "Load_" + dimensionTaskName(q.Table) + "_dim_table"
		dimensions = append(dimensions, d.Add(id, &operators.LoadDimension{
			DB:      o.DB,
			Dialect: o.Dialect,
			Table:   q.Table,
			Columns: q.Columns,
			SQL:     q.Select,
			Append:  o.AppendDimensions,
		}))
	}

	checks := d.Add("Run_data_quality_checks", &operators.DataQuality{
		DB:     o.DB,
		Tables: []string{schema.Songplays, schema.Songs, schema.Artists, schema.Time, schema.Users},
	})

	end := d.Add("Stop_execution", operators.Noop{})

	dag.Chain(
		[]*dag.Node{begin},
		stages,
		[]*dag.Node{fact},
		dimensions,
		[]*dag.Node{checks},
		[]*dag.Node{end},
	)

	return d
}

func dimensionTaskName(table string) string {
	switch table {
	case schema.Users:
		return "user"
	case schema.Songs:
		return "song"
	case schema.Artists:
		return "artist"
	default:
		return table
	}
}
