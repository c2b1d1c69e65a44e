package dwloader

import (
	"database/sql"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader/warehouse"
)

// Option configures DWLoader.
type Option interface {
	apply(*dwloader) error
}

type optionFunc func(*dwloader) error

func (f optionFunc) apply(l *dwloader) error {
	return f(l)
}

// WithPrettyLogging configures DWLoader to print human friendly logs.
func WithPrettyLogging() Option {
	return optionFunc(func(l *dwloader) error {
		l.prettyLogging = true
		return nil
	})
}

// WithLogLevel sets the minimum level of logs such as "debug" or "info".
func WithLogLevel(level string) Option {
	return optionFunc(func(l *dwloader) error {
		lv, err := zerolog.ParseLevel(level)
		if err != nil {
			return xerrors.Errorf("invalid log level %q: %w", level, err)
		}
		l.logLevel = lv
		return nil
	})
}

// WithLogger replaces the logger built from WithPrettyLogging and WithLogLevel.
func WithLogger(logger zerolog.Logger) Option {
	return optionFunc(func(l *dwloader) error {
		l.logger = &logger
		return nil
	})
}

// WithConcurrency sets how many rows each handler projects at once and how many
// events HandleAll processes at once.
func WithConcurrency(n int) Option {
	return optionFunc(func(l *dwloader) error {
		if n < 1 {
			return xerrors.Errorf("concurrency must be positive: %d", n)
		}
		l.concurrency = n
		return nil
	})
}

// WithDB loads handlers without their own Loader into db.
func WithDB(db *sql.DB, dialect warehouse.Dialect) Option {
	return optionFunc(func(l *dwloader) error {
		l.db = db
		l.dialect = dialect
		return nil
	})
}

// WithBigQuery loads handlers without their own Loader into a BigQuery dataset.
func WithBigQuery(project, dataset string) Option {
	return optionFunc(func(l *dwloader) error {
		if project == "" || dataset == "" {
			return xerrors.New("bigquery project and dataset are required")
		}
		l.bqProject = project
		l.bqDataset = dataset
		return nil
	})
}

// WithExtractor replaces the default extractor of handlers.
func WithExtractor(e Extractor) Option {
	return optionFunc(func(l *dwloader) error {
		l.extractor = e
		return nil
	})
}

// NewLogger builds the logger used by loaders and commands.
func NewLogger(pretty bool, level zerolog.Level) zerolog.Logger {
	var logger zerolog.Logger
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	return logger.Level(level).With().Timestamp().Logger()
}
