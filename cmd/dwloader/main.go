package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader"
	"go.nownabe.dev/dwloader/config"
	"go.nownabe.dev/dwloader/warehouse"
)

var (
	configPath string
	logLevel   string
	pretty     bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "dwloader",
	Short: "Load datasets into warehouses and data lakes",
	Long: `dwloader moves JSON, CSV and Parquet datasets into SQL databases,
Redshift, BigQuery and parquet data lakes.

Settings are read from .env, the YAML file given by --config and DWL_*
environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentPreRunE = setup

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "minimum log level, overrides log.level")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "print human friendly logs")

	rootCmd.AddCommand(sparkifyCmd)
	rootCmd.AddCommand(capstoneCmd)
	rootCmd.AddCommand(fileCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := dwloader.NewLogger(true, zerolog.InfoLevel)
	ctx = logger.WithContext(ctx)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Ctx(rootCmd.Context()).Error().Err(err).Msg("dwloader failed")
		stop()
		os.Exit(1)
	}
}

// setup loads the configuration and attaches the configured logger to the
// command context.
func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if pretty {
		c.Log.Pretty = true
	}

	lv, err := c.LogLevel()
	if err != nil {
		return err
	}

	logger := dwloader.NewLogger(c.Log.Pretty, lv).With().Str("command", cmd.CommandPath()).Logger()
	cmd.SetContext(logger.WithContext(cmd.Context()))
	rootCmd.SetContext(cmd.Context())

	cfg = c

	return nil
}

func openDB(ctx context.Context) (*sql.DB, warehouse.Dialect, error) {
	d, err := cfg.Database.Dialect()
	if err != nil {
		return nil, "", err
	}

	dsn, err := cfg.Database.ConnString()
	if err != nil {
		return nil, "", err
	}

	db, err := warehouse.Open(ctx, d, dsn)
	if err != nil {
		return nil, "", xerrors.Errorf("failed to connect to database: %w", err)
	}

	return db, d, nil
}

// notifier posts results to Slack when a token is configured and logs them
// otherwise.
func notifier() dwloader.Notifier {
	if n := slack(); n != nil {
		return n
	}
	return dwloader.LogNotifier{}
}

func slack() *dwloader.SlackNotifier {
	if cfg.Slack.Token == "" {
		return nil
	}
	return &dwloader.SlackNotifier{
		Channel:  cfg.Slack.Channel,
		Token:    cfg.Slack.Token,
		Username: "dwloader",
	}
}
