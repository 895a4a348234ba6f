package source

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// acceptEncoding is sent with every request; responses are decoded by
// decodeBody.
const acceptEncoding = "zstd, gzip"

// decoder wraps a response body with decompression for one content coding.
type decoder func(r io.Reader) (io.ReadCloser, error)

var decoders = map[string]decoder{
	"":         identity,
	"identity": identity,
	"gzip":     gunzip,
	"x-gzip":   gunzip,
	"zstd":     unzstd,
}

func identity(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

func gunzip(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func unzstd(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

// decodeBody returns a reader yielding the decoded body for the given
// Content-Encoding header value.
func decodeBody(contentEncoding string, body io.Reader) (io.ReadCloser, error) {
	coding := strings.ToLower(strings.TrimSpace(contentEncoding))
	dec, ok := decoders[coding]
	if !ok {
		return nil, fmt.Errorf("unsupported content encoding %q", contentEncoding)
	}
	return dec(body)
}
