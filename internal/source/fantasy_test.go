package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingTokens struct{}

func (failingTokens) Token(context.Context) (string, error) {
	return "", errors.New("metadata server unreachable")
}

func TestFantasyLoader_PlayerUniverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ottoneu/get_player_universe", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"message": "file_loaded", "file_name": "ottoneu/player_universe/20210601.parquet"}`))
	}))
	defer srv.Close()

	f := NewFantasyLoader(NewClient(), srv.URL, StaticToken("tok"))
	resp, err := f.PlayerUniverse(t.Context())
	require.NoError(t, err)
	assert.Equal(t, MessageFileLoaded, resp.Message)
	assert.Equal(t, "ottoneu/player_universe/20210601.parquet", resp.FileName)
}

func TestFantasyLoader_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "league=160", r.URL.RawQuery)
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"message": "no_data"}`))
	}))
	defer srv.Close()

	resp, err := NewFantasyLoader(NewClient(), srv.URL+"/", nil).Request(t.Context(), "/ottoneu/league", "league=160")
	require.NoError(t, err)
	assert.Equal(t, "no_data", resp.Message)
}

func TestFantasyLoader_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewFantasyLoader(NewClient(), srv.URL, StaticToken("tok")).PlayerUniverse(t.Context())
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusForbidden, reqErr.StatusCode)

	_, err = NewFantasyLoader(NewClient(), srv.URL, failingTokens{}).PlayerUniverse(t.Context())
	require.ErrorAs(t, err, &reqErr)
	assert.Contains(t, err.Error(), "metadata server unreachable")
}
