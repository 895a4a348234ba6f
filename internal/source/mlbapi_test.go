package source

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/mlbstats/lake"
)

const scheduleBody = `{
  "dates": [{
    "date": "2021-06-01",
    "games": [
      {"gamePk": 634567, "gameDate": "2021-06-01T17:05:00Z", "officialDate": "2021-06-01",
       "teams": {"away": {"score": 3, "team": {"id": 147, "name": "New York Yankees"}},
                 "home": {"score": 5, "team": {"id": 111, "name": "Boston Red Sox"}}}},
      {"gamePk": 634568, "gameDate": "2021-06-01T23:10:00Z", "officialDate": "2021-06-01",
       "teams": {"away": {"team": {"id": 121, "name": "New York Mets"}},
                 "home": {"team": {"id": 144, "name": "Atlanta Braves"}}}}
    ]
  }]
}`

func newMLB(t *testing.T, handler http.HandlerFunc) *MLB {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewMLB(NewClient(WithRateLimit(0, 0)), srv.URL+"/api/v1/")
}

func TestSchedule(t *testing.T) {
	mlb := newMLB(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/schedule", r.URL.Path)
		assert.Equal(t, "2021-06-01", r.URL.Query().Get("startDate"))
		assert.Equal(t, "2021-06-01", r.URL.Query().Get("endDate"))
		assert.Equal(t, "1", r.URL.Query().Get("sportId"))
		_, _ = w.Write([]byte(scheduleBody))
	})

	tbl, err := mlb.Schedule(t.Context(), time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, []string{"gamePk", "gameDate", "officialDate"}, tbl.ColumnNames()[:3])

	col, ok := tbl.Column("gamePk")
	require.True(t, ok)
	assert.Equal(t, lake.TypeInt64, col.Type)
	assert.Equal(t, int64(634567), tbl.Value(0, "gamePk"))
	assert.Equal(t, int64(3), tbl.Value(0, "teams.away.score"))
	assert.Nil(t, tbl.Value(1, "teams.away.score"))
	assert.Equal(t, "Atlanta Braves", tbl.Value(1, "teams.home.team.name"))
}

func TestSchedule_NoGames(t *testing.T) {
	mlb := newMLB(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"dates": []}`))
	})
	tbl, err := mlb.Schedule(t.Context(), time.Now())
	require.NoError(t, err)
	assert.True(t, tbl.IsEmpty())
}

func TestBoxscore(t *testing.T) {
	mlb := newMLB(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/game/634567/boxscore", r.URL.Path)
		_, _ = w.Write([]byte(`{"teams": {
		  "home": {"team": {"id": 111, "name": "Boston Red Sox"}, "players": {
		    "ID646240": {"person": {"id": 646240, "fullName": "Rafael Devers"}, "jerseyNumber": "11",
		                 "position": {"abbreviation": "3B"}, "stats": {"batting": {"hits": 2, "atBats": 4}}}}},
		  "away": {"team": {"id": 147, "name": "New York Yankees"}, "players": {
		    "ID592450": {"person": {"id": 592450, "fullName": "Aaron Judge"}, "jerseyNumber": "99",
		                 "position": {"abbreviation": "RF"}, "stats": {"batting": {"hits": 1, "atBats": 3}}},
		    "ID543037": {"person": {"fullName": "Gerrit Cole"}, "stats": {"pitching": {"strikeOuts": 9}}}}}
		}}`))
	})

	tbl, err := mlb.Boxscore(t.Context(), 634567)
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.NumRows())

	// away sorts before home; player keys sort within a side
	assert.Equal(t, []any{int64(543037), int64(592450), int64(646240)}, columnValues(t, tbl, "playerId"))
	assert.Equal(t, []any{"away", "away", "home"}, columnValues(t, tbl, "teamSide"))
	assert.Equal(t, []any{int64(9), nil, nil}, columnValues(t, tbl, "stats.pitching.strikeOuts"))
	assert.Equal(t, "Boston Red Sox", tbl.Value(2, "teamName"))
}

func TestGameTypes(t *testing.T) {
	mlb := newMLB(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/gameTypes", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id": "R", "description": "Regular Season"}, {"id": "S", "description": "Spring Training"}]`))
	})
	tbl, err := mlb.GameTypes(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "description"}, tbl.ColumnNames())
	assert.Equal(t, "Spring Training", tbl.Value(1, "description"))
}

func TestMLB_RequestError(t *testing.T) {
	mlb := newMLB(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := mlb.GameTypes(t.Context())
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusInternalServerError, reqErr.StatusCode)
}

func columnValues(t *testing.T, tbl *lake.Table, name string) []any {
	t.Helper()
	col, ok := tbl.Column(name)
	require.True(t, ok, "column %s", name)
	return col.Values
}
