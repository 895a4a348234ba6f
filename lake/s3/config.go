package s3

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pithecene-io/mlbstats/lake"
)

// Connection defaults.
const (
	DefaultRegion         = "auto"
	DefaultRequestTimeout = time.Hour
	DefaultConnectTimeout = time.Hour
)

// ConnectionConfig holds everything needed to reach an S3-compatible
// bucket. Build it once at startup, call WithDefaults, and pass it by value.
type ConnectionConfig struct {
	// Endpoint is the service URL. When empty and AccountID is set, the
	// Cloudflare R2 endpoint for that account is used.
	Endpoint string

	// AccountID is the Cloudflare account identifier.
	AccountID string

	// Bucket is the bucket name. Required.
	Bucket string

	// AccessKey and SecretKey are static credentials. Both required.
	AccessKey string
	SecretKey string

	// Prefix is an optional key prefix applied by the lake layout.
	Prefix string

	// Region defaults to "auto", which R2 expects.
	Region string

	// UsePathStyle enables path-style addressing (MinIO, LocalStack).
	UsePathStyle bool

	// RequestTimeout bounds every store operation, body transfer included.
	RequestTimeout time.Duration

	// ConnectTimeout bounds TCP dialing.
	ConnectTimeout time.Duration
}

// WithDefaults returns a copy of c with unset optional fields defaulted.
func (c ConnectionConfig) WithDefaults() ConnectionConfig {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Endpoint == "" && c.AccountID != "" {
		c.Endpoint = R2Endpoint(c.AccountID)
	}
	return c
}

// R2Endpoint returns the Cloudflare R2 S3 endpoint of an account.
func R2Endpoint(accountID string) string {
	return "https://" + accountID + ".r2.cloudflarestorage.com"
}

// Validate reports every missing required field at once, wrapped in
// lake.ErrConfiguration.
func (c ConnectionConfig) Validate() error {
	var missing []string
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if c.Endpoint == "" && c.AccountID == "" {
		missing = append(missing, "endpoint or account id")
	}
	if c.AccessKey == "" {
		missing = append(missing, "access key")
	}
	if c.SecretKey == "" {
		missing = append(missing, "secret key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", lake.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// NewClient creates an S3 client for the connection.
//
// The SDK's own retries are disabled; a failed call surfaces immediately and
// the caller decides whether to retry.
func NewClient(ctx context.Context, c ConnectionConfig) (*s3.Client, error) {
	c = c.WithDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	httpClient := awshttp.NewBuildableClient().
		WithTimeout(c.RequestTimeout).
		WithDialerOptions(func(d *net.Dialer) {
			d.Timeout = c.ConnectTimeout
		})

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
		config.WithHTTPClient(httpClient),
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %w", lake.ErrConfiguration, err)
	}

	endpoint := c.Endpoint
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = c.UsePathStyle
	}), nil
}

// Connect validates c, builds a client, and returns a store over its bucket.
// Missing settings fail with lake.ErrConfiguration before any network I/O.
func Connect(ctx context.Context, c ConnectionConfig) (*Store, error) {
	c = c.WithDefaults()
	client, err := NewClient(ctx, c)
	if err != nil {
		return nil, err
	}
	return New(client, Config{Bucket: c.Bucket, Timeout: c.RequestTimeout})
}

// R2Config returns a connection for a Cloudflare R2 bucket.
func R2Config(accountID, accessKey, secretKey, bucket string) ConnectionConfig {
	return ConnectionConfig{
		AccountID: accountID,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    bucket,
	}.WithDefaults()
}

// MinIOConfig returns a connection for a local MinIO server with its
// default credentials.
func MinIOConfig(bucket string) ConnectionConfig {
	return ConnectionConfig{
		Endpoint:     "http://localhost:9000",
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		Bucket:       bucket,
		Region:       "us-east-1",
		UsePathStyle: true,
	}.WithDefaults()
}
