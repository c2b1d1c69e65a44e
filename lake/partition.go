package lake

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// DefaultPartition is the directory value of a null partition column.
const DefaultPartition = "__HIVE_DEFAULT_PARTITION__"

const partFile = "part-00000.parquet"

// partitions groups rows of a table by the values of its partition columns.
type partitions[T any] struct {
	columns []string
	rows    map[string][]T
}

func newPartitions[T any](columns ...string) *partitions[T] {
	return &partitions[T]{columns: columns, rows: map[string][]T{}}
}

// add appends row to the partition of values, one per partition column.
// Empty values are null.
func (p *partitions[T]) add(row T, values ...string) {
	dirs := make([]string, len(p.columns))
	for i, c := range p.columns {
		v := DefaultPartition
		if values[i] != "" {
			v = escapePartitionValue(values[i])
		}
		dirs[i] = c + "=" + v
	}

	key := path.Join(dirs...)
	p.rows[key] = append(p.rows[key], row)
}

func (p *partitions[T]) keys() []string {
	keys := make([]string, 0, len(p.rows))
	for k := range p.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *partitions[T]) count() int {
	n := 0
	for _, rs := range p.rows {
		n += len(rs)
	}
	return n
}

// writeTable writes one parquet file per partition under table.
func writeTable[T any](ctx context.Context, j *Job, table string, p *partitions[T]) error {
	l := log.Ctx(ctx).With().Str("table", table).Logger()

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(j.opts.Concurrency)

	for _, k := range p.keys() {
		k := k
		rows := p.rows[k]

		eg.Go(func() error {
			buf := &bytes.Buffer{}
			if err := parquet.Write(buf, rows); err != nil {
				return xerrors.Errorf("failed to encode %s/%s: %w", table, k, err)
			}

			key := path.Join(j.output(table), k, partFile)
			if err := j.outS.Put(ctx, key, buf); err != nil {
				return xerrors.Errorf("failed to write %s: %w", key, err)
			}

			l.Debug().Msgf("wrote %d rows to %s", len(rows), key)

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	l.Info().Msgf("wrote %d rows in %d partitions", p.count(), len(p.rows))

	return nil
}

// escapePartitionValue percent-encodes characters that cannot appear in a
// partition directory name.
func escapePartitionValue(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r < 0x20 || r == 0x7f || strings.ContainsRune("\"#%'*/:=?\\{[]^", r) {
			fmt.Fprintf(&b, "%%%02X", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
