// Package assets defines the MLB and Ottoneu pipeline steps and the jobs
// that run them.
package assets

import (
	"errors"
	"time"

	"github.com/pithecene-io/mlbstats/internal/dbt"
	"github.com/pithecene-io/mlbstats/internal/pipeline"
	"github.com/pithecene-io/mlbstats/internal/source"
)

// Partition schemes. MLB data starts with the 2020 season; Ottoneu history
// goes back to 2012.
var (
	MLBHourly     = pipeline.HourlyFrom(2020, 1, 1)
	MLBDaily      = pipeline.DailyFrom(2020, 1, 1)
	MLBMonthly    = pipeline.MonthlyFrom(2020, 1, 1)
	OttoneuDaily  = pipeline.DailyFrom(2012, 8, 5)
	OttoneuLeague = pipeline.DailyFrom(2012, 3, 1)
)

// Schemes names every partition scheme for listing.
func Schemes() map[string]*pipeline.Partitions {
	return map[string]*pipeline.Partitions{
		"mlb_hourly":     MLBHourly,
		"mlb_daily":      MLBDaily,
		"mlb_monthly":    MLBMonthly,
		"ottoneu_daily":  OttoneuDaily,
		"ottoneu_league": OttoneuLeague,
	}
}

// Step groups.
const (
	GroupRawMLBAPI       = "raw_mlb_api"
	GroupStageSchedule   = "stg_mlb_schedule"
	GroupStageBoxScore   = "stg_mlb_box_score"
	GroupMLBTranslations = "stg_mlb_translations"
	GroupOttoneu         = "ottoneu"
	GroupDBT             = "dbt"
)

// Job names.
const (
	JobRawMLBAPI     = "raw_mlb_api_job"
	JobBoxScores     = "box_scores"
	JobStageSchedule = "stage_schedule_job"
)

// Step names.
const (
	StepRawSchedule           = "raw/mlb/schedule"
	StepStageScheduleMonthly  = "stage/mlb/schedule/monthly"
	StepStageSchedule         = "stage/mlb/schedule/schedule"
	StepRawGames              = "raw/mlb/games"
	StepStageBoxScoresMonthly = "stage/mlb/box_scores/monthly"
	StepStageBoxScores        = "stage/mlb/box_scores/box_score"
	StepGameTypes             = "raw/mlb/translations/game_types"
	StepPlayerUniverse        = "ottoneu/player_universe"
	StepDBTBuild              = "dbt/build"
)

// Deps are the clients the steps call.
type Deps struct {
	MLB     *source.MLB
	Fantasy *source.FantasyLoader
	DBT     *dbt.Runner

	// Now stamps load_time. Default time.Now.
	Now func() time.Time
}

type steps struct {
	Deps
}

// Register adds every step and job to reg.
func Register(reg *pipeline.Registry, d Deps) error {
	if d.MLB == nil || d.Fantasy == nil || d.DBT == nil {
		return errors.New("assets: MLB, fantasy loader and dbt clients are required")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &steps{Deps: d}

	all := append(s.mlbSteps(), s.ottoneuSteps()...)
	all = append(all, s.dbtSteps()...)
	for _, step := range all {
		if err := reg.Register(step); err != nil {
			return err
		}
	}

	for _, j := range []struct{ name, group string }{
		{JobRawMLBAPI, GroupRawMLBAPI},
		{JobBoxScores, GroupStageBoxScore},
		{JobStageSchedule, GroupStageSchedule},
	} {
		if _, err := reg.DefineJob(j.name, j.group); err != nil {
			return err
		}
	}
	return reg.Validate()
}

func tags(source, tier string) map[string]string {
	return map[string]string{"source": source, "data-tier": tier}
}
