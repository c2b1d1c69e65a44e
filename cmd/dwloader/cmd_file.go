package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader"
	"go.nownabe.dev/dwloader/config"
	"go.nownabe.dev/dwloader/contrib/handlers"
	"go.nownabe.dev/dwloader/objstore"
	"go.nownabe.dev/dwloader/warehouse"
)

var (
	fileTable    string
	fileColumns  string
	filePrefix   string
	filePattern  string
	fileEncoding string
	fileSkipRows int
	fileTarget   string
)

var fileCmd = &cobra.Command{
	Use:   "file <location>",
	Short: "Load CSV, TSV, JSON, Parquet or XLS files into a table",
	Long: `Load every file under a local directory or bucket into one table of text
columns. Files are parsed by extension and their header names the source
columns:

  dwloader file ./statements --table statements \
    --columns "date=利用日,amount=利用金額" --encoding shift_jis --skip-rows 1`,
	Args: cobra.ExactArgs(1),
	RunE: runFile,
}

func init() {
	fileCmd.Flags().StringVar(&fileTable, "table", "", "destination table")
	fileCmd.Flags().StringVar(&fileColumns, "columns", "", "comma separated destination columns, as name or name=source")
	fileCmd.Flags().StringVar(&filePrefix, "prefix", "", "only load files under this prefix of the location")
	fileCmd.Flags().StringVar(&filePattern, "pattern", handlers.DefaultFilePattern, "regular expression files must match")
	fileCmd.Flags().StringVar(&fileEncoding, "encoding", "", "character encoding of text files such as shift_jis")
	fileCmd.Flags().IntVar(&fileSkipRows, "skip-rows", 0, "rows to skip before the header")
	fileCmd.Flags().StringVar(&fileTarget, "target", string(config.TargetSQL), "load target, sql or bigquery")

	_ = fileCmd.MarkFlagRequired("table")
	_ = fileCmd.MarkFlagRequired("columns")
}

func runFile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	target := config.Target(fileTarget)
	if target != config.TargetSQL && target != config.TargetBigQuery {
		return xerrors.Errorf("unknown target %q", fileTarget)
	}
	if err := cfg.Validate(config.JobFile, target); err != nil {
		return err
	}

	cols, err := handlers.ParseFileColumns([]string{fileColumns})
	if err != nil {
		return err
	}
	enc, err := handlers.LookupEncoding(fileEncoding)
	if err != nil {
		return err
	}

	h := handlers.File(fileTable, filePattern, fileTable, cols, handlers.FileOptions{
		Encoding:        enc,
		SkipLeadingRows: fileSkipRows,
	}, notifier())

	region := objstore.WithRegion(cfg.S3.Region)
	opts := []dwloader.Option{
		dwloader.WithLogger(*log.Ctx(ctx)),
		dwloader.WithConcurrency(cfg.Concurrency),
		dwloader.WithExtractor(dwloader.NewExtractor(region)),
	}

	if target == config.TargetBigQuery {
		opts = append(opts, dwloader.WithBigQuery(cfg.BigQuery.Project, cfg.BigQuery.Dataset))
	} else {
		db, d, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := warehouse.CreateTables(ctx, db, d, h.Table); err != nil {
			return xerrors.Errorf("failed to create %s: %w", fileTable, err)
		}
		opts = append(opts, dwloader.WithDB(db, d))
	}

	l, err := dwloader.New(opts...)
	if err != nil {
		return err
	}
	defer l.Close()

	if err := l.AddHandler(ctx, h); err != nil {
		return err
	}

	events, err := dwloader.ListEvents(ctx, args[0], filePrefix, h.Pattern, region)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return xerrors.Errorf("no file matching %s found in %s", filePattern, args[0])
	}

	return l.HandleAll(ctx, events)
}
