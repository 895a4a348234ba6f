package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// TokenSource supplies bearer tokens for the fantasy loader.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// MessageFileLoaded is the loader's answer when the requested file was
// written to the lake.
const MessageFileLoaded = "file_loaded"

// LoaderResponse is the fantasy loader's reply.
type LoaderResponse struct {
	Message  string `json:"message"`
	FileName string `json:"file_name"`
}

// FantasyLoader calls the fantasy loader microservice, which fetches league
// data and writes it to the lake itself.
type FantasyLoader struct {
	client  *Client
	baseURL string
	tokens  TokenSource
}

// NewFantasyLoader creates a loader client. tokens may be nil when the
// service needs no authentication.
func NewFantasyLoader(client *Client, baseURL string, tokens TokenSource) *FantasyLoader {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &FantasyLoader{client: client, baseURL: baseURL, tokens: tokens}
}

// Request calls endpoint (relative to the base URL) with an optional raw
// query string.
func (f *FantasyLoader) Request(ctx context.Context, endpoint, query string) (LoaderResponse, error) {
	u := f.baseURL + strings.TrimLeft(endpoint, "/")
	if query != "" {
		u += "?" + query
	}

	header := http.Header{}
	if f.tokens != nil {
		tok, err := f.tokens.Token(ctx)
		if err != nil {
			return LoaderResponse{}, &RequestError{URL: u, Err: fmt.Errorf("bearer token: %w", err)}
		}
		if tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	var resp LoaderResponse
	if err := f.client.GetJSON(ctx, u, header, &resp); err != nil {
		return LoaderResponse{}, err
	}
	return resp, nil
}

// PlayerUniverse asks the loader to refresh the Ottoneu player universe.
func (f *FantasyLoader) PlayerUniverse(ctx context.Context) (LoaderResponse, error) {
	return f.Request(ctx, "ottoneu/get_player_universe", "")
}
