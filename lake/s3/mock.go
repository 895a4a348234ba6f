package s3

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// MockS3Client is an in-memory test double for API.
//
// Faults can be injected per key with FailKeys, and every call can be
// slowed with Latency to exercise timeouts. PageSize > 0 makes
// ListObjectsV2 paginate.
type MockS3Client struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// FailKeys maps an object key to the error its operations return.
	FailKeys map[string]error

	// Latency delays every call; a done context wins over the delay.
	Latency time.Duration

	// PageSize limits keys per ListObjectsV2 page. Zero returns one page.
	PageSize int

	// Call counters for test assertions.
	PutObjectCalls int
	GetObjectCalls int
	ListCalls      int
}

// NewMockS3Client creates an empty mock.
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		objects:  make(map[string][]byte),
		FailKeys: make(map[string]error),
	}
}

func (m *MockS3Client) wait(ctx context.Context) error {
	if m.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(m.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *MockS3Client) fault(key string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.FailKeys[key]
}

// PutObject implements API.PutObject.
func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(params.Key)
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if err := m.fault(key); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutObjectCalls++
	m.objects[key] = data
	return &s3.PutObjectOutput{}, nil
}

// GetObject implements API.GetObject.
func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)
	m.mu.Lock()
	m.GetObjectCalls++
	m.mu.Unlock()

	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if err := m.fault(key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, exists := m.objects[key]
	m.mu.RUnlock()
	if !exists {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

// HeadObject implements API.HeadObject.
func (m *MockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(params.Key)
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if err := m.fault(key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	_, exists := m.objects[key]
	m.mu.RUnlock()
	if !exists {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

// DeleteObject implements API.DeleteObject.
func (m *MockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	key := aws.ToString(params.Key)
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if err := m.fault(key); err != nil {
		return nil, err
	}

	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

// ListObjectsV2 implements API.ListObjectsV2. Continuation tokens are the
// index of the next key in sorted order.
func (m *MockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.ListCalls++
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mu.Unlock()
	sort.Strings(keys)

	start := 0
	if tok := aws.ToString(params.ContinuationToken); tok != "" {
		start, _ = strconv.Atoi(tok)
	}
	end := len(keys)
	if m.PageSize > 0 && start+m.PageSize < end {
		end = start + m.PageSize
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

// APIError is a smithy.APIError with a fixed code, for fault injection.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// ErrorCode implements smithy.APIError.
func (e *APIError) ErrorCode() string {
	return e.Code
}

// ErrorMessage implements smithy.APIError.
func (e *APIError) ErrorMessage() string {
	return e.Message
}

// ErrorFault implements smithy.APIError.
func (e *APIError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultUnknown
}

// StatusError carries only an HTTP status, like a response error whose
// body could not be parsed.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return "http status " + strconv.Itoa(e.Status)
}

// HTTPStatusCode returns the HTTP status.
func (e *StatusError) HTTPStatusCode() int {
	return e.Status
}
