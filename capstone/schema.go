package capstone

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"

	"github.com/parquet-go/parquet-go"
	"golang.org/x/xerrors"

	"go.nownabe.dev/dwloader/objstore"
)

var parquetFile = regexp.MustCompile(`\.parquet$`)

// Schema writes the schema of the first parquet file under sas_data of base
// to w.
func Schema(ctx context.Context, base string, w io.Writer, opts ...objstore.Option) error {
	loc, err := objstore.ParseLocation(base)
	if err != nil {
		return err
	}

	s, err := objstore.Open(ctx, loc, opts...)
	if err != nil {
		return xerrors.Errorf("failed to open store for %s: %w", base, err)
	}

	keys, err := s.List(ctx, loc.Join(SASData).Key)
	if err != nil {
		return err
	}

	key := ""
	for _, k := range keys {
		if parquetFile.MatchString(k) {
			key = k
			break
		}
	}
	if key == "" {
		return xerrors.Errorf("no parquet file found in %s", loc.Join(SASData))
	}

	b, err := objstore.ReadAll(ctx, s, key)
	if err != nil {
		return err
	}

	f, err := parquet.OpenFile(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return xerrors.Errorf("failed to open %s: %w", key, err)
	}

	fmt.Fprintf(w, "# %s (%d rows)\n%s\n", key, f.NumRows(), f.Schema())

	return nil
}
