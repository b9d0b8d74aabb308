/*

This file contains the cold-storage archive mirror: a best-effort S3
(or S3-compatible) copy of every archived round, written after the
Reputation Store's Postgres commit succeeds. Postgres stays the source of
truth — a Sink failure here is logged and swallowed, never surfaced to the
scheduler's tick loop.

*/

package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/elys-network/lpvalidator/internal/logger"
	"github.com/elys-network/lpvalidator/internal/round"
	"github.com/elys-network/lpvalidator/internal/types"
)

// Config describes the S3-compatible bucket an archive.Sink writes to.
type Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// Sink mirrors archived rounds to object storage. Nil-safe: a nil *Sink
// mirrors nothing, so callers that never configure archival can pass one
// around without a feature-flag check at every call site.
type Sink struct {
	client *s3.Client
	bucket string
}

// New creates a Sink from cfg, or returns (nil, nil) if cfg.Bucket is
// empty, signaling archival is not configured.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("archive: region is required")
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.ForcePathStyle
		})
	}

	return &Sink{client: s3.NewFromConfig(awsCfg, opts...), bucket: cfg.Bucket}, nil
}

// archivedRound is the JSON payload written per round: enough to
// reconstruct what the scheduler saw without a Postgres round trip.
type archivedRound struct {
	Round  types.Round  `json:"round"`
	Result round.Result `json:"result"`
}

// WriteRound uploads r and its Result under a key derived from the round
// ID. Best-effort: callers should log the returned error and continue,
// never fail the round over it.
func (s *Sink) WriteRound(ctx context.Context, r types.Round, result round.Result) error {
	if s == nil {
		return nil
	}

	payload, err := json.Marshal(archivedRound{Round: r, Result: result})
	if err != nil {
		return fmt.Errorf("archive: marshal round %q: %w", r.RoundID, err)
	}

	key := fmt.Sprintf("rounds/%s/%s.json", r.JobID, r.RoundID)
	uploader := manager.NewUploader(s.client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: upload round %q: %w", r.RoundID, err)
	}

	logger.GetForComponent("archive").Debug().Str("round_id", r.RoundID).Str("key", key).Msg("round mirrored to object storage")
	return nil
}
