package gc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// UtilizationProfile is the live/expired accounting the GC maintains per store, persisted so a
// restart doesn't have to rescan the whole log to rebuild it.
type UtilizationProfile struct {
	GeneratedAt int64 // unix seconds, stamped by Collector.SaveUtilizationProfile via kvenv.Now
	PerStore    map[string]StoreUtilization
}

// StoreUtilization is one store's live vs. expired counts as of GeneratedAt, summed from the
// deltas passed to Collector.RecordUsage. The Environment reports tree generations, not bytes,
// despite the field names.
type StoreUtilization struct {
	LiveBytes    int64
	ExpiredBytes int64
}

// S3Profile persists the utilization profile blob to S3 so it survives host loss, the way the
// teacher's aws_s3/cached_bucket.go and in_red_cs3/s3/blob_store.go offload store state off-host.
type S3Profile struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Profile builds an S3Profile against bucket/key using an aws.Config the caller assembled
// (credentials, region) — kept out of this package so it stays testable without real AWS access.
func NewS3Profile(cfg aws.Config, bucket, key string) *S3Profile {
	if key == "" {
		key = "kvenv/gc-utilization-profile.json"
	}
	return &S3Profile{client: s3.NewFromConfig(cfg), bucket: bucket, key: key}
}

// Save uploads data, the already-serialized profile, to the configured bucket and key.
func (p *S3Profile) Save(ctx context.Context, data []byte) error {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("gc: saving utilization profile to s3://%s/%s: %w", p.bucket, p.key, err)
	}
	return nil
}

// Load fetches the last-saved profile bytes, or (nil, nil) if no object has been written yet.
func (p *S3Profile) Load(ctx context.Context) ([]byte, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("gc: loading utilization profile from s3://%s/%s: %w", p.bucket, p.key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
