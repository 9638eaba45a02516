package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"photoline/internal/config"
	"photoline/internal/faults"
	"photoline/internal/logging"
)

// s3Store writes objects to an S3-compatible bucket and serves them from a
// public base URL.
type s3Store struct {
	client    *s3.Client
	bucket    string
	publicURL string
	timeout   time.Duration
	boundary  Boundary
	logger    *slog.Logger
}

func newS3Store(ctx context.Context, cfg *config.Config, o options) (*s3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.Region),
	}
	if cfg.Storage.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Storage.AccessKeyID,
			cfg.Storage.SecretAccessKey,
			"",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Storage.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(opts *s3.Options) {
		if endpoint != "" {
			opts.BaseEndpoint = aws.String(endpoint)
		}
		opts.UsePathStyle = cfg.Storage.UsePathStyle
		// Uploads are attempted once; the caller decides whether to resubmit.
		opts.RetryMaxAttempts = 1
		opts.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		if o.client != nil {
			opts.HTTPClient = o.client
		}
	})

	return &s3Store{
		client:    client,
		bucket:    cfg.Storage.Bucket,
		publicURL: strings.TrimRight(cfg.Storage.PublicBaseURL, "/"),
		timeout:   cfg.StorageTimeout(),
		boundary:  NewBoundary(cfg),
		logger:    o.logger,
	}, nil
}

func (s *s3Store) Backend() string { return config.BackendS3 }

func (s *s3Store) Put(ctx context.Context, key string, data []byte, contentType string, progress ProgressFunc) (Result, error) {
	if err := s.boundary.Check(contentType, int64(len(data))); err != nil {
		return Result{}, err
	}
	reqCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	body := newProgressReader(data, progress)
	started := time.Now()
	_, err := s.client.PutObject(reqCtx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(NormalizeContentType(contentType)),
		CacheControl:  aws.String(CacheControl),
	})
	if err != nil {
		return Result{}, s.classify(ctx, "put object", err)
	}
	body.finish()

	s.logger.Debug("object stored",
		logging.String(logging.FieldStorageKey, key),
		logging.String("bucket", s.bucket),
		logging.Int("bytes", len(data)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return Result{URL: joinURL(s.publicURL, key), Key: key}, nil
}

func (s *s3Store) Stat(ctx context.Context, key string) (StatResult, error) {
	reqCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	url := joinURL(s.publicURL, key)
	out, err := s.client.HeadObject(reqCtx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
			return StatResult{URL: url}, nil
		}
		return StatResult{}, s.classify(ctx, "head object", err)
	}
	return StatResult{
		Exists:      true,
		URL:         url,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

func (s *s3Store) classify(parent context.Context, operation string, err error) error {
	var respErr *awshttp.ResponseError
	if parent.Err() == nil && errors.As(err, &respErr) {
		return faults.Wrap(classifyStatusCode(respErr.HTTPStatusCode()), stage, operation,
			fmt.Sprintf("bucket %s", s.bucket), err)
	}
	return classifyTransport(parent, operation, err)
}
