// Package thumbs resolves thumbnail object keys into presigned S3 URLs.
// Query results carry object-store keys in the blend_thumbnail,
// image_thumbnail and video_thumbnail columns; Enrich swaps each key for a
// time-limited URL the frontend can render directly. Enrichment is best
// effort: a presign failure leaves the key untouched and never fails the
// request.
package thumbs

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/prodkit/assetq-go/internal/logging"
)

// thumbnailColumns are the result columns that may hold object keys,
// in the order matching file_type values blend/image/video.
var thumbnailColumns = []string{"blend_thumbnail", "image_thumbnail", "video_thumbnail"}

// Resolver turns an object key into a fetchable URL.
type Resolver interface {
	URLFor(ctx context.Context, key string) (string, error)
}

// S3Resolver presigns GetObject URLs against one bucket.
type S3Resolver struct {
	presigner *s3.PresignClient
	bucket    string
	ttl       time.Duration
}

// NewS3Resolver builds a resolver from the ambient AWS credential chain.
func NewS3Resolver(ctx context.Context, bucket, region string, ttl time.Duration) (*S3Resolver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("thumbs: empty bucket")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("thumbs: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Resolver{
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		ttl:       ttl,
	}, nil
}

// URLFor presigns a GetObject request for key.
func (r *S3Resolver) URLFor(ctx context.Context, key string) (string, error) {
	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &r.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(r.ttl))
	if err != nil {
		return "", fmt.Errorf("thumbs: presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Enrich replaces thumbnail object keys in rows with presigned URLs and
// sets a thumbnail_url convenience field from the column matching each
// row's file_type. Rows without thumbnail columns pass through untouched.
func Enrich(ctx context.Context, r Resolver, rows []map[string]any) {
	if r == nil {
		return
	}
	log := logging.FromContext(ctx)

	for _, row := range rows {
		for _, col := range thumbnailColumns {
			key, ok := row[col].(string)
			if !ok || key == "" {
				continue
			}
			url, err := r.URLFor(ctx, key)
			if err != nil {
				log.Debug("thumbs: presign failed",
					"column", col,
					"error", err,
				)
				continue
			}
			row[col] = url
			if col == columnForType(row["file_type"]) {
				row["thumbnail_url"] = url
			}
		}
	}
}

// columnForType maps a file_type value to its thumbnail column.
func columnForType(v any) string {
	switch v {
	case "blend":
		return "blend_thumbnail"
	case "image":
		return "image_thumbnail"
	case "video":
		return "video_thumbnail"
	}
	return ""
}
