package assets

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/pithecene-io/mlbstats/internal/normalize"
	"github.com/pithecene-io/mlbstats/internal/pipeline"
	"github.com/pithecene-io/mlbstats/lake"
)

const noGames = "No games scheduled"

func (s *steps) mlbSteps() []pipeline.Step {
	days := pipeline.TimeWindow{AllowNonexistent: true}
	previousDay := pipeline.TimeWindow{StartOffset: -1, EndOffset: -1, AllowNonexistent: true}

	return []pipeline.Step{
		{
			Namespace:   []string{"raw", "mlb", "schedule"},
			Group:       GroupRawMLBAPI,
			Description: "Schedule of MLB games",
			Partitions:  MLBDaily,
			Retries:     2,
			Tags:        tags("mlb_api", "raw"),
			Handler:     s.rawSchedule,
		},
		{
			Namespace:   []string{"stage", "mlb", "schedule", "monthly"},
			Group:       GroupStageSchedule,
			Description: "Schedule of MLB games, one file per month",
			Partitions:  MLBMonthly,
			Inputs:      []pipeline.Input{{Name: "schedule", Step: StepRawSchedule, Mapping: days}},
			Tags:        tags("mlb_api", "stage"),
			Handler:     stageSchedule("schedule"),
		},
		{
			Namespace:   []string{"stage", "mlb", "schedule", "schedule"},
			Group:       GroupStageSchedule,
			Description: "Schedule of MLB games, all months",
			Inputs:      []pipeline.Input{{Name: "monthly", Step: StepStageScheduleMonthly, Mapping: pipeline.AllPartitions{}}},
			Tags:        tags("mlb_api", "stage"),
			Handler:     stageSchedule("monthly"),
		},
		{
			Namespace:   []string{"raw", "mlb", "games"},
			Group:       GroupRawMLBAPI,
			Description: "Player box scores of the previous day's games",
			Partitions:  MLBDaily,
			Inputs:      []pipeline.Input{{Name: "schedule", Step: StepRawSchedule, Mapping: previousDay}},
			Retries:     2,
			Tags:        tags("mlb_api", "raw"),
			Handler:     s.rawGames,
		},
		{
			Namespace:   []string{"stage", "mlb", "box_scores", "monthly"},
			Group:       GroupStageBoxScore,
			Description: "Player box scores, one file per month",
			Partitions:  MLBMonthly,
			Inputs:      []pipeline.Input{{Name: "games", Step: StepRawGames, Mapping: days}},
			Tags:        tags("mlb_api", "stage"),
			Handler:     stageBoxScores("games"),
		},
		{
			Namespace:   []string{"stage", "mlb", "box_scores", "box_score"},
			Group:       GroupStageBoxScore,
			Description: "Player box scores, all months",
			Inputs:      []pipeline.Input{{Name: "monthly", Step: StepStageBoxScoresMonthly, Mapping: pipeline.AllPartitions{}}},
			Tags:        tags("mlb_api", "stage"),
			Handler:     stageBoxScores("monthly"),
		},
		{
			Namespace:   []string{"raw", "mlb", "translations", "game_types"},
			Group:       GroupMLBTranslations,
			Description: "MLB game type codes",
			Retries:     2,
			Tags:        tags("mlb_api", "raw"),
			Handler:     s.gameTypes,
		},
	}
}

// rawSchedule fetches the partition day's games, keeps those whose
// game_date falls on that day, and stamps load_time and partition_key.
func (s *steps) rawSchedule(ctx context.Context, sc *pipeline.StepContext, _ map[string]*lake.Table) (any, error) {
	t, err := s.MLB.Schedule(ctx, sc.WindowStart)
	if err != nil {
		return nil, err
	}
	if empty(t) {
		sc.AddMetadata("summary", noGames)
		return nil, nil
	}

	if t, err = normalize.Table(t); err != nil {
		return nil, err
	}
	if t, err = parseTimestamp(t, "game_date"); err != nil {
		return nil, err
	}
	t = onDay(t, "game_date", sc.WindowStart)

	if t, err = t.WithConstant("load_time", s.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}
	if t, err = t.WithConstant("partition_key", sc.Partition); err != nil {
		return nil, err
	}
	t = t.SortBy("load_time")

	sc.AddMetadata("game_count", distinct(t, "game_pk"))
	return t, nil
}

// stageSchedule passes the named input through, sorted by load_time.
// An empty input produces no output.
func stageSchedule(input string) pipeline.Handler {
	return func(_ context.Context, sc *pipeline.StepContext, in map[string]*lake.Table) (any, error) {
		t := in[input]
		if empty(t) {
			sc.AddMetadata("summary", noGames)
			return nil, nil
		}
		sc.AddMetadata("game_count", distinct(t, "game_pk"))
		return t.SortBy("load_time"), nil
	}
}

// rawGames fetches the box score of every game on the upstream schedule and
// stacks the per-player rows.
func (s *steps) rawGames(ctx context.Context, sc *pipeline.StepContext, in map[string]*lake.Table) (any, error) {
	schedule := in["schedule"]
	if empty(schedule) {
		sc.AddMetadata("summary", noGames)
		return nil, nil
	}

	gameDates := map[int64]any{}
	var order []int64
	for row := range schedule.NumRows() {
		v := schedule.Value(row, "game_pk")
		if v == nil {
			continue
		}
		pk, err := asInt64(v)
		if err != nil {
			return nil, fmt.Errorf("game_pk row %d: %w", row, err)
		}
		if _, seen := gameDates[pk]; seen {
			continue
		}
		gameDates[pk] = schedule.Value(row, "game_date")
		order = append(order, pk)
	}
	slices.Sort(order)
	sc.Logger.Info("fetching box scores", "games", len(order))

	loadTime := s.Now().UTC()
	parts := make([]*lake.Table, 0, len(order))
	for _, pk := range order {
		sc.Logger.Debug("fetching box score", "game_pk", pk)
		box, err := s.MLB.Boxscore(ctx, pk)
		if err != nil {
			return nil, fmt.Errorf("boxscore %d: %w", pk, err)
		}
		if empty(box) {
			continue
		}
		for _, c := range []struct {
			name  string
			value any
		}{
			{"gamePk", pk},
			{"gameDate", gameDates[pk]},
			{"partitionKey", sc.Partition},
			{"loadTime", loadTime},
		} {
			if c.value == nil {
				continue
			}
			if box, err = box.WithConstant(c.name, c.value); err != nil {
				return nil, err
			}
		}
		if box, err = normalize.Table(box); err != nil {
			return nil, err
		}
		parts = append(parts, box)
	}

	t := lake.Concat(parts...)
	if empty(t) {
		return nil, nil
	}
	sc.AddMetadata("player_count", distinct(t, "player_id"))
	sc.AddMetadata("game_count", distinct(t, "game_pk"))
	return t, nil
}

// stageBoxScores passes the named input through. An empty input produces no
// output.
func stageBoxScores(input string) pipeline.Handler {
	return func(_ context.Context, sc *pipeline.StepContext, in map[string]*lake.Table) (any, error) {
		t := in[input]
		if empty(t) {
			sc.AddMetadata("summary", noGames)
			return nil, nil
		}
		sc.AddMetadata("player_count", distinct(t, "player_id"))
		sc.AddMetadata("game_count", distinct(t, "game_pk"))
		return t, nil
	}
}

func (s *steps) gameTypes(ctx context.Context, _ *pipeline.StepContext, _ map[string]*lake.Table) (any, error) {
	t, err := s.MLB.GameTypes(ctx)
	if err != nil {
		return nil, err
	}
	return normalize.Table(t)
}
