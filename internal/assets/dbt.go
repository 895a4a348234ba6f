package assets

import (
	"context"

	"github.com/pithecene-io/mlbstats/internal/pipeline"
	"github.com/pithecene-io/mlbstats/lake"
)

func (s *steps) dbtSteps() []pipeline.Step {
	return []pipeline.Step{
		{
			Namespace:   []string{"dbt", "build"},
			Group:       GroupDBT,
			Description: "dbt build over the staged lake tables",
			Tags:        tags("dbt", "mart"),
			Handler:     s.dbtBuild,
		},
	}
}

func (s *steps) dbtBuild(ctx context.Context, sc *pipeline.StepContext, _ map[string]*lake.Table) (any, error) {
	res, err := s.DBT.Build(ctx)
	if res != nil {
		sc.AddMetadata("exit_code", res.ExitCode)
		sc.AddMetadata("output_lines", len(res.Output))
	}
	return nil, err
}
