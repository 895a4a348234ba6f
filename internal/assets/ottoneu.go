package assets

import (
	"context"
	"fmt"
	"strings"

	"github.com/pithecene-io/mlbstats/internal/pipeline"
	"github.com/pithecene-io/mlbstats/internal/source"
	"github.com/pithecene-io/mlbstats/lake"
)

const playerUniverseEndpoint = "ottoneu/get_player_universe"

func (s *steps) ottoneuSteps() []pipeline.Step {
	return []pipeline.Step{
		{
			Namespace:   []string{"ottoneu", "player_universe"},
			Group:       GroupOttoneu,
			Description: "Player universe for Ottoneu",
			Tags: map[string]string{
				"source":   "fantasy_loader",
				"endpoint": strings.ReplaceAll(playerUniverseEndpoint, "/", "."),
			},
			Handler: s.playerUniverse,
		},
	}
}

// playerUniverse asks the fantasy loader to write the player universe. The
// loader writes the file itself, so the step has no table output.
func (s *steps) playerUniverse(ctx context.Context, sc *pipeline.StepContext, _ map[string]*lake.Table) (any, error) {
	resp, err := s.Fantasy.Request(ctx, playerUniverseEndpoint, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load player universe: %w", err)
	}
	if resp.Message != source.MessageFileLoaded {
		return nil, fmt.Errorf("failed to load player universe: loader answered %q", resp.Message)
	}
	sc.AddMetadata("file_name", resp.FileName)
	sc.AddMetadata("data_version", resp.FileName)
	return nil, nil
}
