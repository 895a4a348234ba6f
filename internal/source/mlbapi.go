package source

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pithecene-io/mlbstats/lake"
)

// MLB reads the public MLB Stats API.
type MLB struct {
	client  *Client
	baseURL string
}

// NewMLB creates an MLB API reader rooted at baseURL
// (e.g. https://statsapi.mlb.com/api/v1).
func NewMLB(client *Client, baseURL string) *MLB {
	return &MLB{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type scheduleResponse struct {
	Dates []struct {
		Date  string           `json:"date"`
		Games []map[string]any `json:"games"`
	} `json:"dates"`
}

// Schedule returns one flattened row per game scheduled on day (UTC date).
// Days without games yield an empty table.
func (m *MLB) Schedule(ctx context.Context, day time.Time) (*lake.Table, error) {
	date := day.Format(time.DateOnly)
	q := url.Values{}
	q.Set("sportId", "1")
	q.Set("startDate", date)
	q.Set("endDate", date)
	u := m.baseURL + "/schedule?" + q.Encode()

	var resp scheduleResponse
	if err := m.client.GetJSON(ctx, u, nil, &resp); err != nil {
		return nil, err
	}

	var records []map[string]any
	for _, d := range resp.Dates {
		for _, g := range d.Games {
			records = append(records, Flatten(g))
		}
	}
	if len(records) == 0 {
		return lake.EmptyTable(), nil
	}
	t, err := lake.FromRecords(records, "gamePk", "gameDate", "officialDate")
	if err != nil {
		return nil, &ParseError{URL: u, Err: err}
	}
	return t, nil
}

type boxscoreResponse struct {
	Teams map[string]struct {
		Team    map[string]any            `json:"team"`
		Players map[string]map[string]any `json:"players"`
	} `json:"teams"`
}

// Boxscore returns one row per player appearing in the game, with the
// player's game stats flattened into columns. Each row carries playerId,
// teamSide (away/home), teamId and teamName.
func (m *MLB) Boxscore(ctx context.Context, gamePk int64) (*lake.Table, error) {
	u := m.baseURL + "/game/" + strconv.FormatInt(gamePk, 10) + "/boxscore"

	var resp boxscoreResponse
	if err := m.client.GetJSON(ctx, u, nil, &resp); err != nil {
		return nil, err
	}

	sides := make([]string, 0, len(resp.Teams))
	for side := range resp.Teams {
		sides = append(sides, side)
	}
	sort.Strings(sides)

	var records []map[string]any
	for _, side := range sides {
		team := resp.Teams[side]
		ids := make([]string, 0, len(team.Players))
		for id := range team.Players {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			p := team.Players[id]
			rec := map[string]any{
				"person":   p["person"],
				"position": p["position"],
				"stats":    p["stats"],
			}
			rec = Flatten(rec)
			rec["playerId"] = personID(p, id)
			rec["jerseyNumber"] = p["jerseyNumber"]
			rec["teamSide"] = side
			rec["teamId"] = team.Team["id"]
			rec["teamName"] = team.Team["name"]
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		return lake.EmptyTable(), nil
	}
	t, err := lake.FromRecords(records, "playerId", "teamSide", "teamId", "teamName")
	if err != nil {
		return nil, &ParseError{URL: u, Err: err}
	}
	return t, nil
}

// personID prefers person.id and falls back to the "ID123" player map key.
func personID(player map[string]any, key string) any {
	if person, ok := player["person"].(map[string]any); ok {
		if id, ok := person["id"]; ok && id != nil {
			return id
		}
	}
	if n, err := strconv.ParseInt(strings.TrimPrefix(key, "ID"), 10, 64); err == nil {
		return n
	}
	return key
}

// GameTypes returns the game type translation table (id, description).
func (m *MLB) GameTypes(ctx context.Context) (*lake.Table, error) {
	u := m.baseURL + "/gameTypes"

	var rows []map[string]any
	if err := m.client.GetJSON(ctx, u, nil, &rows); err != nil {
		return nil, err
	}
	records := make([]map[string]any, len(rows))
	for i, r := range rows {
		records[i] = Flatten(r)
	}
	t, err := lake.FromRecords(records, "id", "description")
	if err != nil {
		return nil, &ParseError{URL: u, Err: fmt.Errorf("game types: %w", err)}
	}
	return t, nil
}
