package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/internal/market"
	"carbon-scribe/credit-market/credit-market-backend/internal/reports/export"
)

// Uploader is the part of the S3 transfer manager the archiver needs
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// StatementSource assembles the statement of one project
type StatementSource interface {
	Statement(projectID int64) (export.Statement, error)
}

// Archiver uploads the final statement of a project once it settles.
// It is subscribed to the engine like any other publisher.
type Archiver struct {
	source   StatementSource
	uploader Uploader
	bucket   string
	prefix   string
	logger   *zap.Logger
}

// NewArchiver creates an archiver writing to bucket under prefix
func NewArchiver(source StatementSource, uploader Uploader, bucket, prefix string, logger *zap.Logger) (*Archiver, error) {
	if bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		source:   source,
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
		logger:   logger,
	}, nil
}

// NewS3Archiver builds the uploader from the default AWS credential chain
func NewS3Archiver(ctx context.Context, source StatementSource, region, bucket, prefix string, logger *zap.Logger) (*Archiver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewArchiver(source, manager.NewUploader(s3.NewFromConfig(cfg)), bucket, prefix, logger)
}

// Key returns the object key of a project's statement
func (a *Archiver) Key(projectID int64) string {
	return path.Join(a.prefix, fmt.Sprintf("project-%d-statement.xlsx", projectID))
}

// Publish archives on settlement and penalty events and ignores the rest
func (a *Archiver) Publish(ctx context.Context, event market.Event) error {
	if event.Type != market.EventSettlement && event.Type != market.EventPenalty {
		return nil
	}

	st, err := a.source.Statement(event.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to assemble statement for project %d: %w", event.ProjectID, err)
	}
	var buf bytes.Buffer
	if err := export.WriteStatement(&buf, st); err != nil {
		return fmt.Errorf("failed to render statement for project %d: %w", event.ProjectID, err)
	}

	key := a.Key(event.ProjectID)
	out, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(xlsxContentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload statement %s: %w", key, err)
	}

	a.logger.Info("Statement archived",
		zap.Int64("project_id", event.ProjectID),
		zap.String("location", out.Location))
	return nil
}
