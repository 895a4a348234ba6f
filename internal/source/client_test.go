package source

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON_Encodings(t *testing.T) {
	payload := []byte(`{"n": 12345678901, "s": "x"}`)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zst := enc.EncodeAll(payload, nil)
	require.NoError(t, enc.Close())

	tests := []struct {
		name   string
		coding string
		body   []byte
	}{
		{"identity", "", payload},
		{"gzip", "gzip", gz.Bytes()},
		{"zstd", "zstd", zst},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, acceptEncoding, r.Header.Get("Accept-Encoding"))
				if tt.coding != "" {
					w.Header().Set("Content-Encoding", tt.coding)
				}
				_, _ = w.Write(tt.body)
			}))
			defer srv.Close()

			var out map[string]any
			require.NoError(t, NewClient().GetJSON(t.Context(), srv.URL, nil, &out))
			assert.Equal(t, "12345678901", out["n"].(interface{ String() string }).String())
			assert.Equal(t, "x", out["s"])
		})
	}
}

func TestGetJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var out map[string]any
	err := NewClient().GetJSON(t.Context(), srv.URL+"/x", nil, &out)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusServiceUnavailable, reqErr.StatusCode)
	assert.Equal(t, srv.URL+"/x", reqErr.URL)
	assert.Contains(t, err.Error(), "returned status code 503")
}

func TestGetJSON_ParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		coding string
		body   string
	}{
		{"bad json", "", "{not json"},
		{"unknown coding", "br", "{}"},
		{"bad gzip", "gzip", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.coding != "" {
					w.Header().Set("Content-Encoding", tt.coding)
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			var out map[string]any
			err := NewClient().GetJSON(t.Context(), srv.URL, nil, &out)
			var parseErr *ParseError
			assert.ErrorAs(t, err, &parseErr)
		})
	}
}

func TestGetJSON_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var out map[string]any
	err := NewClient().GetJSON(t.Context(), url, nil, &out)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Zero(t, reqErr.StatusCode)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestGetJSON_RateLimitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := NewClient(WithRateLimit(0.001, 1))
	var out map[string]any
	require.NoError(t, c.GetJSON(t.Context(), srv.URL, nil, &out))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err := c.GetJSON(ctx, srv.URL, nil, &out)
	var reqErr *RequestError
	assert.ErrorAs(t, err, &reqErr)
}

func TestGetJSON_Headers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "v", r.Header.Get("X-Test"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	var out map[string]any
	require.NoError(t, NewClient(WithRateLimit(0, 0)).GetJSON(t.Context(), srv.URL, http.Header{"X-Test": {"v"}}, &out))
}

func TestFlatten(t *testing.T) {
	var obj map[string]any
	require.NoError(t, json.UnmarshalFromString(`{"a":{"b":{"c":1},"d":"x"},"e":[1,2],"f":{},"g":null}`, &obj))

	got := Flatten(obj)
	assert.Len(t, got, 4)
	assert.Equal(t, "1", got["a.b.c"].(interface{ String() string }).String())
	assert.Equal(t, "x", got["a.d"])
	assert.Equal(t, "[1,2]", got["e"])
	assert.Contains(t, got, "g")
	assert.Nil(t, got["g"])
}
