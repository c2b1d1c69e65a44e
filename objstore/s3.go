package objstore

import (
	"bytes"
	"context"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/xerrors"
)

// S3Store serves an S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds a Store for bucket. Credentials and, when region is empty,
// the region come from the default AWS chain (AWS_ACCESS_KEY_ID etc). Without
// any region DefaultRegion is used.
func NewS3Store(ctx context.Context, bucket, region string) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to load aws config for %s: %w", bucket, err)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	return &S3Store{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// Region returns the region requests are sent to.
func (s *S3Store) Region() string {
	return s.client.Options().Region
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}

	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, xerrors.Errorf("failed to list s3://%s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			if k := aws.ToString(obj.Key); underPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
	}

	sort.Strings(keys)

	return keys, nil
}

func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to get s3://%s/%s: %w", s.bucket, key, err)
	}

	return out.Body, nil
}

// Put buffers r so the upload has a known length.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return xerrors.Errorf("failed to buffer s3://%s/%s: %w", s.bucket, key, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(b),
	})
	if err != nil {
		return xerrors.Errorf("failed to put s3://%s/%s: %w", s.bucket, key, err)
	}

	return nil
}
