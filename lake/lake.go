// Package lake builds the Sparkify data lake: song and log JSON files are
// turned into parquet tables laid out in hive-style partition directories.
package lake

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader"
	"go.nownabe.dev/dwloader/contrib/handlers"
	"go.nownabe.dev/dwloader/objstore"
)

// Default locations of the job.
const (
	DefaultInput  = "s3://udacity-dend/"
	DefaultOutput = "s3://p4-spark/"
)

const defaultConcurrency = 8

var jsonFile = regexp.MustCompile(`\.json$`)

var (
	songHeader  = dwloader.Header(handlers.SongColumns)
	eventHeader = dwloader.Header(handlers.EventColumns)
)

// Options configures Run.
type Options struct {
	Input  string
	Output string

	// Region of S3 locations. The AWS environment or
	// objstore.DefaultRegion is used when empty.
	Region string

	// Concurrency bounds file reads and partition writes.
	Concurrency int
}

func (o *Options) setDefaults() {
	if o.Input == "" {
		o.Input = DefaultInput
	}
	if o.Output == "" {
		o.Output = DefaultOutput
	}
	if o.Concurrency < 1 {
		o.Concurrency = defaultConcurrency
	}
}

// Job holds the opened input and output locations.
type Job struct {
	opts Options

	in   objstore.Location
	inS  objstore.Store
	out  objstore.Location
	outS objstore.Store
}

// Run processes song data and then log data.
func Run(ctx context.Context, opts Options) error {
	j, err := NewJob(ctx, opts)
	if err != nil {
		return err
	}

	songs, err := j.ProcessSongData(ctx)
	if err != nil {
		return err
	}

	return j.ProcessLogData(ctx, songs)
}

// NewJob opens the stores of opts.
func NewJob(ctx context.Context, opts Options) (*Job, error) {
	opts.setDefaults()

	j := &Job{opts: opts}

	var err error
	if j.in, j.inS, err = open(ctx, opts.Input, opts.Region); err != nil {
		return nil, err
	}
	if j.out, j.outS, err = open(ctx, opts.Output, opts.Region); err != nil {
		return nil, err
	}

	return j, nil
}

func open(ctx context.Context, uri, region string) (objstore.Location, objstore.Store, error) {
	loc, err := objstore.ParseLocation(uri)
	if err != nil {
		return loc, nil, err
	}

	s, err := objstore.Open(ctx, loc, objstore.WithRegion(region))
	if err != nil {
		return loc, nil, xerrors.Errorf("failed to open %s: %w", uri, err)
	}

	return loc, s, nil
}

// readJSON parses every JSON file under prefix into rows of columns, in key
// order.
func (j *Job) readJSON(ctx context.Context, prefix string, columns []string) ([][]string, error) {
	keys, err := j.inS.List(ctx, j.in.Join(prefix).Key)
	if err != nil {
		return nil, xerrors.Errorf("failed to list %s: %w", prefix, err)
	}

	files := []string{}
	for _, k := range keys {
		if jsonFile.MatchString(k) {
			files = append(files, k)
		}
	}

	log.Ctx(ctx).Info().Msgf("%d files found in %s", len(files), j.in.Join(prefix))

	parse := dwloader.JSONParser(columns...)
	parsed := make([][][]string, len(files))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(j.opts.Concurrency)

	for i, k := range files {
		i, k := i, k
		eg.Go(func() error {
			b, err := objstore.ReadAll(ctx, j.inS, k)
			if err != nil {
				return err
			}

			rows, err := parse(ctx, bytes.NewReader(b))
			if err != nil {
				return xerrors.Errorf("failed to parse %s: %w", k, err)
			}
			parsed[i] = rows

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	rows := [][]string{}
	for _, p := range parsed {
		rows = append(rows, p...)
	}

	return rows, nil
}

// output returns the key of a table directory relative to the output store.
func (j *Job) output(table string) string {
	return strings.TrimPrefix(j.out.Join(table).Key, "/")
}
