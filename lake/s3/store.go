// Package s3 provides an S3-compatible storage adapter for the lake.
//
// The adapter targets Cloudflare R2 first and also works with AWS S3, MinIO,
// and LocalStack.
//
// # Semantics
//
//   - Put: single PutObject of the full payload; an existing object is
//     replaced (last writer wins).
//   - Get: reads the whole body under the request timeout and returns an
//     in-memory reader, so the timeout also bounds the transfer.
//   - List: follows continuation tokens and returns every matching key.
//   - Delete: idempotent.
//
// # Errors
//
// Failures are classified onto lake sentinels: missing objects map to
// lake.ErrNotFound, rejected credentials to lake.ErrPermission, and
// everything else (timeouts, 5xx, network errors) to lake.ErrTransient.
// The original SDK error stays in the chain.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/pithecene-io/mlbstats/lake"
)

// API defines the subset of the S3 client interface used by the store.
// *s3.Client satisfies it.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config configures a Store.
type Config struct {
	// Bucket is the S3 bucket name. Required.
	Bucket string

	// Timeout bounds each operation. Zero means no store-level timeout.
	Timeout time.Duration
}

// Store implements lake.Store over an S3-compatible bucket.
//
// Store holds no per-call state and is safe for concurrent use.
type Store struct {
	client  API
	bucket  string
	timeout time.Duration
}

var _ lake.Store = (*Store)(nil)

// New creates a store over an existing client.
func New(client API, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: s3 client is required", lake.ErrConfiguration)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", lake.ErrConfiguration)
	}
	return &Store{client: client, bucket: cfg.Bucket, timeout: cfg.Timeout}, nil
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string { return s.bucket }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Put writes the full payload to key, replacing any existing object.
func (s *Store) Put(ctx context.Context, key string, r io.Reader) error {
	fullKey, err := validateKey(key)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("s3: read payload: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(fullKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return classify("put object", err)
	}
	return nil
}

// Get retrieves the object at key.
// Returns lake.ErrNotFound if the key does not exist.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	fullKey, err := validateKey(key)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, lake.ErrNotFound
		}
		return nil, classify("get object", err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, classify("read object body", err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Exists checks whether key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	fullKey, err := validateKey(key)
	if err != nil {
		return false, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, classify("head object", err)
	}
	return true, nil
}

// List returns all keys under prefix. Pagination is handled internally.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix, err := validatePrefix(prefix)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var keys []string
	var continuationToken *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(fullPrefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, classify("list objects", err)
		}
		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuationToken = out.NextContinuationToken
	}
	return keys, nil
}

// Delete removes key. Deleting a missing key succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	fullKey, err := validateKey(key)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil && !isNotFound(err) {
		return classify("delete object", err)
	}
	return nil
}

func validateKey(key string) (string, error) {
	if key == "" {
		return "", lake.ErrInvalidPath
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", lake.ErrInvalidPath
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" {
		return "", lake.ErrInvalidPath
	}
	return cleaned, nil
}

func validatePrefix(prefix string) (string, error) {
	if prefix == "" {
		return "", nil
	}
	cleaned := path.Clean(prefix)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", lake.ErrInvalidPath
	}
	if cleaned == "." {
		return "", nil
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	// Keep the trailing slash so "a/b/" does not also match "a/bc".
	if strings.HasSuffix(prefix, "/") && cleaned != "" {
		cleaned += "/"
	}
	return cleaned, nil
}

// -----------------------------------------------------------------------------
// Error classification
// -----------------------------------------------------------------------------

// classify wraps err with the lake sentinel matching its cause.
func classify(op string, err error) error {
	switch {
	case isConfiguration(err):
		return fmt.Errorf("s3: %s: %w: %w", op, lake.ErrConfiguration, err)
	case isPermission(err):
		return fmt.Errorf("s3: %s: %w: %w", op, lake.ErrPermission, err)
	default:
		return fmt.Errorf("s3: %s: %w: %w", op, lake.ErrTransient, err)
	}
}

// isNotFound checks if an error indicates the object was not found. A missing
// bucket also answers 404 but is a configuration error.
func isNotFound(err error) bool {
	if isConfiguration(err) {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return statusCode(err) == http.StatusNotFound
}

// isConfiguration checks if an error points at the bucket or endpoint
// settings rather than the object.
func isConfiguration(err error) bool {
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "InvalidBucketName", "PermanentRedirect",
			"AuthorizationHeaderMalformed":
			return true
		}
	}
	return false
}

// isPermission checks if an error indicates rejected credentials.
func isPermission(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "403", "InvalidAccessKeyId",
			"SignatureDoesNotMatch", "InvalidToken", "ExpiredToken":
			return true
		}
	}
	code := statusCode(err)
	return code == http.StatusForbidden || code == http.StatusUnauthorized
}

// statusCode extracts the HTTP status of a response error, or 0.
func statusCode(err error) int {
	var re interface{ HTTPStatusCode() int }
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}
