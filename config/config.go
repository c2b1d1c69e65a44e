// Package config loads dwloader settings from .env, a YAML file and DWL_*
// environment variables, in that order of increasing precedence.
package config

import (
	"errors"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"go.nownabe.dev/dwloader/capstone"
	"go.nownabe.dev/dwloader/lake"
	"go.nownabe.dev/dwloader/sparkify"
	"go.nownabe.dev/dwloader/warehouse"
)

// DefaultPath is the YAML file read when no path is given.
const DefaultPath = "dwloader.yaml"

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "DWL_"

// Config holds all settings.
type Config struct {
	Log         LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Database    DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	S3          S3Config       `yaml:"s3" envPrefix:"S3_"`
	IAMRole     IAMRoleConfig  `yaml:"iam_role" envPrefix:"IAM_ROLE_"`
	Lake        LakeConfig     `yaml:"lake" envPrefix:"LAKE_"`
	BigQuery    BigQueryConfig `yaml:"bigquery" envPrefix:"BIGQUERY_"`
	Slack       SlackConfig    `yaml:"slack" envPrefix:"SLACK_"`
	Capstone    CapstoneConfig `yaml:"capstone" envPrefix:"CAPSTONE_"`
	Concurrency int            `yaml:"concurrency" env:"CONCURRENCY"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Pretty bool   `yaml:"pretty" env:"PRETTY"`
}

// DatabaseConfig is either a DSN or its parts.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"DRIVER"`
	DSN      string `yaml:"dsn" env:"DSN"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Name     string `yaml:"name" env:"NAME"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
}

type S3Config struct {
	LogData     string `yaml:"log_data" env:"LOG_DATA"`
	LogJSONPath string `yaml:"log_jsonpath" env:"LOG_JSONPATH"`
	SongData    string `yaml:"song_data" env:"SONG_DATA"`
	Region      string `yaml:"region" env:"REGION"`
}

type IAMRoleConfig struct {
	ARN string `yaml:"arn" env:"ARN"`
}

type LakeConfig struct {
	Input  string `yaml:"input" env:"INPUT"`
	Output string `yaml:"output" env:"OUTPUT"`
}

type BigQueryConfig struct {
	Project string `yaml:"project" env:"PROJECT"`
	Dataset string `yaml:"dataset" env:"DATASET"`
}

type SlackConfig struct {
	Token   string `yaml:"token" env:"TOKEN"`
	Channel string `yaml:"channel" env:"CHANNEL"`
}

type CapstoneConfig struct {
	LocalBase    string `yaml:"local_base" env:"LOCAL_BASE"`
	RemoteBase   string `yaml:"remote_base" env:"REMOTE_BASE"`
	GoogleAPIKey string `yaml:"google_api_key" env:"GOOGLE_API_KEY"`
	SASCodes     string `yaml:"sas_codes" env:"SAS_CODES"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Database: DatabaseConfig{
			Driver:   string(warehouse.Postgres),
			Host:     "127.0.0.1",
			Port:     5432,
			Name:     "sparkifydb",
			User:     "student",
			Password: "student",
		},
		S3: S3Config{
			LogData:     sparkify.DefaultLogData,
			LogJSONPath: sparkify.DefaultLogJSONPath,
			SongData:    sparkify.DefaultSongData,
			Region:      warehouse.DefaultRegion,
		},
		Lake: LakeConfig{
			Input:  lake.DefaultInput,
			Output: lake.DefaultOutput,
		},
		Capstone: CapstoneConfig{
			LocalBase:  capstone.DefaultLocalBase,
			RemoteBase: capstone.DefaultRemoteBase,
		},
		Concurrency: 1,
	}
}

// Load reads .env in the working directory and the YAML file at path, then
// applies DWL_* environment variables. A missing .env is ignored, and so is a
// missing file at the default path.
func Load(path string) (*Config, error) {
	return load(".env", path)
}

func load(dotenv, path string) (*Config, error) {
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, xerrors.Errorf("failed to load %s: %w", dotenv, err)
	}

	c := Default()

	optional := path == ""
	if optional {
		path = DefaultPath
	}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, xerrors.Errorf("failed to parse %s: %w", path, err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, xerrors.Errorf("failed to read config: %w", err)
	}

	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, xerrors.Errorf("failed to parse environment variables: %w", err)
	}

	return c, nil
}

// Dialect returns the dialect of the configured driver.
func (d DatabaseConfig) Dialect() (warehouse.Dialect, error) {
	return warehouse.ParseDialect(d.Driver)
}

// ConnString returns DSN, or builds one from the other fields.
func (d DatabaseConfig) ConnString() (string, error) {
	if d.DSN != "" {
		return d.DSN, nil
	}

	dialect, err := d.Dialect()
	if err != nil {
		return "", err
	}

	switch dialect {
	case warehouse.SQLite:
		if d.Name == "" {
			return "", xerrors.New("database name is required for sqlite")
		}
		return d.Name, nil
	case warehouse.MySQL:
		mc := mysql.NewConfig()
		mc.User = d.User
		mc.Passwd = d.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		mc.DBName = d.Name
		mc.ParseTime = true
		return mc.FormatDSN(), nil
	case warehouse.BigQuery:
		return "", xerrors.New("bigquery has no connection string")
	default:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(d.User, d.Password),
			Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
			Path:   "/" + d.Name,
		}
		return u.String(), nil
	}
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (zerolog.Level, error) {
	lv, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.NoLevel, xerrors.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return lv, nil
}
