package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"go.nownabe.dev/dwloader/config"
	"go.nownabe.dev/dwloader/dag"
	"go.nownabe.dev/dwloader/lake"
	"go.nownabe.dev/dwloader/sparkify"
)

var (
	sparkifyData string

	dwhInsert bool
	dwhCopy   bool
	dwhLocal  bool
	dwhCreate bool

	lakeInput  string
	lakeOutput string

	dagOnce     bool
	dagSchedule string
	dagAppend   bool
	dagLocal    bool
)

var sparkifyCmd = &cobra.Command{
	Use:   "sparkify",
	Short: "Load the Sparkify song and listening-log datasets",
}

var sparkifyETLCmd = &cobra.Command{
	Use:   "etl",
	Short: "Load song and log files into the star schema row by row",
	RunE:  runSparkifyETL,
}

var sparkifyDWHCmd = &cobra.Command{
	Use:   "dwh",
	Short: "Stage raw data and build the star schema with INSERT..SELECT",
	Long: `Stage raw data with COPY and build the star schema from the staging tables.

Without flags both steps run. --copy only stages, --insert only builds the star
schema. --local stages files from --data through the loader instead of COPY.`,
	RunE: runSparkifyDWH,
}

var sparkifyLakeCmd = &cobra.Command{
	Use:   "lake",
	Short: "Write the star schema as a partitioned parquet data lake",
	RunE:  runSparkifyLake,
}

var sparkifyDAGCmd = &cobra.Command{
	Use:   "dag",
	Short: "Run the staging, load and quality check DAG on a schedule",
	RunE:  runSparkifyDAG,
}

func init() {
	sparkifyCmd.PersistentFlags().StringVar(&sparkifyData, "data", "data", "local directory holding song_data and log_data")

	sparkifyDWHCmd.Flags().BoolVar(&dwhInsert, "insert", false, "only run INSERT..SELECT into the star schema")
	sparkifyDWHCmd.Flags().BoolVar(&dwhCopy, "copy", false, "only stage data with COPY")
	sparkifyDWHCmd.Flags().BoolVar(&dwhLocal, "local", false, "stage local files instead of COPY from S3")
	sparkifyDWHCmd.Flags().BoolVar(&dwhCreate, "create", false, "drop and recreate every table first")

	sparkifyLakeCmd.Flags().StringVar(&lakeInput, "input", "", "input location, overrides lake.input")
	sparkifyLakeCmd.Flags().StringVar(&lakeOutput, "output", "", "output location, overrides lake.output")

	sparkifyDAGCmd.Flags().BoolVar(&dagOnce, "once", false, "run the DAG once and exit")
	sparkifyDAGCmd.Flags().StringVar(&dagSchedule, "schedule", "", "cron expression, hourly by default")
	sparkifyDAGCmd.Flags().BoolVar(&dagAppend, "append-dimensions", false, "append to dimension tables instead of replacing them")
	sparkifyDAGCmd.Flags().BoolVar(&dagLocal, "local", false, "stage local files instead of COPY from S3")

	sparkifyCmd.AddCommand(sparkifyETLCmd)
	sparkifyCmd.AddCommand(sparkifyDWHCmd)
	sparkifyCmd.AddCommand(sparkifyLakeCmd)
	sparkifyCmd.AddCommand(sparkifyDAGCmd)
}

func runSparkifyETL(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if err := cfg.Validate(config.JobETL, ""); err != nil {
		return err
	}

	db, d, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	return sparkify.RunETL(ctx, db, d, sparkify.ETLOptions{
		Data:        sparkifyData,
		Concurrency: cfg.Concurrency,
		Notifier:    notifier(),
	})
}

func runSparkifyDWH(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if dwhInsert && dwhCopy {
		return sparkify.ErrConflictingModes
	}
	if err := cfg.Validate(config.JobDWH, ""); err != nil {
		return err
	}

	db, d, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	return sparkify.RunWarehouse(ctx, db, d, sparkify.WarehouseOptions{
		InsertOnly:   dwhInsert,
		CopyOnly:     dwhCopy,
		Local:        dwhLocal,
		Data:         sparkifyData,
		CreateTables: dwhCreate,
		LogData:      cfg.S3.LogData,
		LogJSONPath:  cfg.S3.LogJSONPath,
		SongData:     cfg.S3.SongData,
		Region:       cfg.S3.Region,
		IAMRole:      cfg.IAMRole.ARN,
	})
}

func runSparkifyLake(cmd *cobra.Command, _ []string) error {
	if lakeInput != "" {
		cfg.Lake.Input = lakeInput
	}
	if lakeOutput != "" {
		cfg.Lake.Output = lakeOutput
	}
	if err := cfg.Validate(config.JobLake, ""); err != nil {
		return err
	}

	return lake.Run(cmd.Context(), lake.Options{
		Input:       cfg.Lake.Input,
		Output:      cfg.Lake.Output,
		Region:      cfg.S3.Region,
		Concurrency: cfg.Concurrency,
	})
}

func runSparkifyDAG(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	lg := log.Ctx(ctx)

	if err := cfg.Validate(config.JobDAG, ""); err != nil {
		return err
	}

	db, d, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	g := sparkify.NewDAG(sparkify.DAGOptions{
		DB:               db,
		Dialect:          d,
		Schedule:         dagSchedule,
		AppendDimensions: dagAppend,
		Local:            dagLocal,
		Data:             sparkifyData,
		LogData:          cfg.S3.LogData,
		LogJSONPath:      cfg.S3.LogJSONPath,
		SongData:         cfg.S3.SongData,
		Region:           cfg.S3.Region,
		IAMRole:          cfg.IAMRole.ARN,
	})

	if dagOnce {
		r, err := g.Run(ctx)
		report(ctx, r, err)
		return err
	}

	s := dag.NewScheduler()
	s.OnResult = func(r *dag.RunResult, err error) {
		report(ctx, r, err)
		if next, ok := s.NextRun(g.ID); ok {
			lg.Info().Time("next_run", next).Msgf("%s runs next at %s", g.ID, next.Format(time.RFC3339))
		}
	}
	if err := s.Register(ctx, g); err != nil {
		return err
	}
	lg.Info().Msgf("scheduled %s with %q", g.ID, g.Schedule)

	s.Start(ctx)

	return nil
}

// report sends a summary of a DAG run to Slack when configured.
func report(ctx context.Context, r *dag.RunResult, err error) {
	n := slack()
	if n == nil {
		return
	}

	text := summary(r, err)
	if perr := n.Post(ctx, text); perr != nil {
		log.Ctx(ctx).Error().Err(perr).Msg("failed to post dag result")
	}
}

func summary(r *dag.RunResult, err error) string {
	if r == nil {
		return fmt.Sprintf("dag failed to start: %v", err)
	}
	if err == nil {
		return fmt.Sprintf("dag %s succeeded in %s", r.DAGID, r.Elapsed.Round(time.Millisecond))
	}
	return fmt.Sprintf("dag %s failed in %s: %s", r.DAGID, r.Elapsed.Round(time.Millisecond), strings.Join(r.Failed(), ", "))
}
