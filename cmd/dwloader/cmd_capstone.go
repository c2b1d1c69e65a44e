package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader/capstone"
	"go.nownabe.dev/dwloader/config"
	"go.nownabe.dev/dwloader/contrib/handlers"
)

var (
	capstoneLocal     bool
	capstoneGoogleAPI bool
	capstoneTarget    string
)

var capstoneCmd = &cobra.Command{
	Use:   "capstone",
	Short: "Build the immigration warehouse",
}

var capstoneLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load immigration, temperature, demographic and airport data",
	Long: `Load immigration, temperature, demographic and airport data and build the
aggregate tables.

States of temperature records come from the enriched temperature dataset, or
from the Google reverse geocoding API with --google-api.`,
	RunE: runCapstoneLoad,
}

var capstoneQCCmd = &cobra.Command{
	Use:   "qc",
	Short: "Run quality checks on the immigration warehouse",
	RunE:  runCapstoneQC,
}

var capstoneSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the parquet schema of the immigration data",
	RunE:  runCapstoneSchema,
}

func init() {
	capstoneCmd.PersistentFlags().BoolVar(&capstoneLocal, "local", false, "read data from capstone.local_base instead of capstone.remote_base")

	capstoneLoadCmd.Flags().BoolVar(&capstoneGoogleAPI, "google-api", false, "resolve states with the Google geocoding API")
	capstoneLoadCmd.Flags().StringVar(&capstoneTarget, "target", string(config.TargetSQL), "load target, sql or bigquery")

	capstoneCmd.AddCommand(capstoneLoadCmd)
	capstoneCmd.AddCommand(capstoneQCCmd)
	capstoneCmd.AddCommand(capstoneSchemaCmd)
}

func capstoneExtractor() capstone.Extractor {
	return capstone.Extractor{
		Local:      capstoneLocal,
		LocalBase:  cfg.Capstone.LocalBase,
		RemoteBase: cfg.Capstone.RemoteBase,
		Region:     cfg.S3.Region,
	}
}

func runCapstoneLoad(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	target := config.Target(capstoneTarget)
	if target != config.TargetSQL && target != config.TargetBigQuery {
		return xerrors.Errorf("unknown target %q", capstoneTarget)
	}
	if err := cfg.Validate(config.JobCapstoneLoad, target); err != nil {
		return err
	}

	opts := capstone.BuildOptions{
		Extractor:   capstoneExtractor(),
		Concurrency: cfg.Concurrency,
		Notifier:    notifier(),
	}

	if capstoneGoogleAPI {
		if cfg.Capstone.GoogleAPIKey == "" {
			return xerrors.New("--google-api needs capstone.google_api_key")
		}
		opts.GoogleAPIKey = cfg.Capstone.GoogleAPIKey
	}

	if cfg.Capstone.SASCodes != "" {
		f, err := os.Open(cfg.Capstone.SASCodes)
		if err != nil {
			return xerrors.Errorf("failed to open SAS codes: %w", err)
		}
		defer f.Close()

		opts.Codes, err = handlers.LoadSASCodes(f)
		if err != nil {
			return err
		}
	}

	if target == config.TargetBigQuery {
		opts.BigQueryProject = cfg.BigQuery.Project
		opts.BigQueryDataset = cfg.BigQuery.Dataset
		return capstone.Build(ctx, opts)
	}

	db, d, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	opts.DB = db
	opts.Dialect = d

	return capstone.Build(ctx, opts)
}

func runCapstoneQC(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if err := cfg.Validate(config.JobCapstoneQC, ""); err != nil {
		return err
	}

	db, _, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	return capstone.QC(ctx, db)
}

func runCapstoneSchema(cmd *cobra.Command, _ []string) error {
	e := capstoneExtractor()
	return capstone.Schema(cmd.Context(), e.Base(), cmd.OutOrStdout(), e.StoreOptions()...)
}
