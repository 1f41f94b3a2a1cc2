package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/authkeeper/internal/clock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// putObjectAPI is the slice of *s3.Client used by S3Recorder.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds the connection settings of an S3 compatible endpoint
// (MinIO works). Bucket and key prefix are given to NewS3Recorder.
type S3Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

// S3Recorder stores each entry as its own JSON object under
// <prefix>/YYYY/MM/DD/<id>.json. Objects are written with If-None-Match so
// an existing entry is never overwritten.
type S3Recorder struct {
	client  putObjectAPI
	bucket  string
	prefix  string
	stamper *stamper
}

var _ Recorder = (*S3Recorder)(nil)

func NewS3Recorder(client putObjectAPI, bucket, prefix string, c clock.Clock) (*S3Recorder, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: s3 client is nil", common.ErrConfiguration)
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("%w: s3 bucket is not set", common.ErrConfiguration)
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "audit"
	}
	return &S3Recorder{client: client, bucket: bucket, prefix: prefix, stamper: newStamper(c)}, nil
}

func (r *S3Recorder) Record(ctx context.Context, principalID *string, email string, client models.ClientInfo, action models.AuditAction) error {
	e, err := r.stamper.entry(principalID, email, client, action)
	if err != nil {
		return err
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit encode: %w", err)
	}

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(r.objectKey(e)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		return fmt.Errorf("audit put object: %w", common.Transient(err))
	}
	return nil
}

func (r *S3Recorder) objectKey(e *models.AuditLogEntry) string {
	return path.Join(r.prefix, e.CreatedAt.Format("2006/01/02"), e.ID+".json")
}

// seams for tests
var (
	loadDefaultAWSConfig  = awsconfig.LoadDefaultConfig
	newS3ClientFromConfig = s3.NewFromConfig
)

// NewS3Client builds an S3 client with static credentials and an optional
// custom endpoint (path-style addressing, as MinIO expects).
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})
	return client, nil
}
