// Package objectstore wraps the S3 client used to read legacy avatars and
// signing key material.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"avatarmig/internal/services"
)

// DefaultMaxObjectBytes caps how much of one object Get will read.
const DefaultMaxObjectBytes = 16 << 20

// Sentinels for classified S3 failures.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrAccessDenied   = errors.New("access denied")
)

// Options configures client construction.
type Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	MaxRetries      int
}

// GetObjectAPI is the subset of the S3 client used here.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewClient builds an S3 client. Static credentials are used when both keys
// are set; otherwise the default credential chain applies.
func NewClient(ctx context.Context, opts Options) (*s3.Client, error) {
	if strings.TrimSpace(opts.Region) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "objectstore", "new client", "region is required", nil)
	}

	var loadOptions []func(*awsConfig.LoadOptions) error
	loadOptions = append(loadOptions, awsConfig.WithRegion(opts.Region))

	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		provider := credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")
		loadOptions = append(loadOptions, awsConfig.WithCredentialsProvider(provider))
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	loadOptions = append(loadOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "objectstore", "load aws config", "", err)
	}

	endpoint := strings.TrimSpace(opts.Endpoint)
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			// Custom endpoints (MinIO, localstack) expect path-style addressing.
			o.UsePathStyle = true
		}
	}), nil
}

// Get reads an entire object, up to limit bytes (DefaultMaxObjectBytes when
// limit <= 0). Missing objects wrap ErrObjectNotFound.
func Get(ctx context.Context, client GetObjectAPI, bucket, key string, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxObjectBytes
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, classify(err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("s3://%s/%s: read body: %w", bucket, key, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("s3://%s/%s: object exceeds %d bytes", bucket, key, limit)
	}
	return data, nil
}

// classify maps typed and generic S3 API errors onto the package sentinels.
// S3-compatible stores often return only a generic APIError code.
func classify(err error) error {
	var noKey *types.NoSuchKey
	var noBucket *types.NoSuchBucket
	if errors.As(err, &noKey) || errors.As(err, &noBucket) {
		return ErrObjectNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return fmt.Errorf("%w (%s)", ErrObjectNotFound, apiErr.ErrorCode())
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w (%s): %s", ErrAccessDenied, apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
	}
	return err
}

// ParseURI splits an s3://bucket/key identifier.
func ParseURI(raw string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(raw), "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// ParseHTTPURL extracts bucket and key from an S3 HTTPS URL. Both
// path-style (s3.amazonaws.com/bucket/key) and virtual-hosted style
// (bucket.s3.amazonaws.com/key) URLs are understood.
func ParseHTTPURL(raw string) (bucket, key string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", "", false
	}
	host := strings.ToLower(u.Hostname())
	if !strings.HasSuffix(host, ".amazonaws.com") {
		return "", "", false
	}
	path := strings.TrimPrefix(u.Path, "/")

	if host == "s3.amazonaws.com" || strings.HasPrefix(host, "s3.") || strings.HasPrefix(host, "s3-") {
		bucket, key, found := strings.Cut(path, "/")
		if !found || bucket == "" || key == "" {
			return "", "", false
		}
		return bucket, key, true
	}

	idx := strings.Index(host, ".s3")
	if idx <= 0 || path == "" {
		return "", "", false
	}
	return host[:idx], path, true
}
