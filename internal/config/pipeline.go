package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/mlbstats/lake"
)

// Pipeline is the optional pipeline file: I/O tuning, cron schedules, and
// run-status sensors.
//
//	io:
//	  batch_size: 50
//	  max_workers: 10
//	schedules:
//	  - name: raw_mlb_api_daily
//	    job: raw_mlb_api_job
//	    cron: "0 9 * * *"
//	    partition_offset: -1
//	sensors:
//	  - name: box_scores_on_raw_success
//	    watch: raw_mlb_api_job
//	    target: box_scores
type Pipeline struct {
	IO        IOSettings `yaml:"io"`
	Schedules []Schedule `yaml:"schedules"`
	Sensors   []Sensor   `yaml:"sensors"`
}

// IOSettings tunes multi-partition reads. Zero keeps the default.
type IOSettings struct {
	BatchSize  int `yaml:"batch_size"`
	MaxWorkers int `yaml:"max_workers"`
}

// Schedule runs a job on a cron expression.
type Schedule struct {
	Name string `yaml:"name"`
	Job  string `yaml:"job"`
	Cron string `yaml:"cron"`

	// PartitionOffset selects the partition relative to the one containing
	// the tick time: -1 is the previous day for a daily job.
	PartitionOffset int `yaml:"partition_offset"`

	// Timezone for the cron expression. Default UTC.
	Timezone string `yaml:"timezone"`
}

// Location resolves the schedule's timezone.
func (s Schedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// Sensor runs Target after every successful run of Watch.
type Sensor struct {
	Name   string `yaml:"name"`
	Watch  string `yaml:"watch"`
	Target string `yaml:"target"`
}

// DefaultPipeline is used when no pipeline file is configured.
func DefaultPipeline() Pipeline {
	return Pipeline{
		Schedules: []Schedule{
			{Name: "raw_mlb_api_daily", Job: "raw_mlb_api_job", Cron: "0 9 * * *", PartitionOffset: -1},
		},
		Sensors: []Sensor{
			{Name: "stage_schedule_on_raw_success", Watch: "raw_mlb_api_job", Target: "stage_schedule_job"},
			{Name: "box_scores_on_raw_success", Watch: "raw_mlb_api_job", Target: "box_scores"},
		},
	}
}

// LoadPipelineFile reads and validates a pipeline file. Unknown fields are
// rejected.
func LoadPipelineFile(path string) (Pipeline, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		return Pipeline{}, fmt.Errorf("%w: read %s: %w", lake.ErrConfiguration, path, err)
	}

	var p Pipeline
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("%w: parse %s: %w", lake.ErrConfiguration, path, err)
	}
	if err := p.Validate(); err != nil {
		return Pipeline{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Validate checks names, cron expressions and timezones. Job names are
// resolved later against the step registry.
func (p Pipeline) Validate() error {
	if p.IO.BatchSize < 0 || p.IO.MaxWorkers < 0 {
		return fmt.Errorf("%w: io settings must not be negative", lake.ErrConfiguration)
	}

	seen := map[string]bool{}
	for i, s := range p.Schedules {
		if s.Name == "" || s.Job == "" {
			return fmt.Errorf("%w: schedule %d needs a name and a job", lake.ErrConfiguration, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate schedule %q", lake.ErrConfiguration, s.Name)
		}
		seen[s.Name] = true
		if _, err := cron.ParseStandard(s.Cron); err != nil {
			return fmt.Errorf("%w: schedule %q: cron %q: %w", lake.ErrConfiguration, s.Name, s.Cron, err)
		}
		if _, err := s.Location(); err != nil {
			return fmt.Errorf("%w: schedule %q: %w", lake.ErrConfiguration, s.Name, err)
		}
	}

	seen = map[string]bool{}
	for i, s := range p.Sensors {
		if s.Name == "" || s.Watch == "" || s.Target == "" {
			return fmt.Errorf("%w: sensor %d needs name, watch and target", lake.ErrConfiguration, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate sensor %q", lake.ErrConfiguration, s.Name)
		}
		seen[s.Name] = true
		if s.Watch == s.Target {
			return fmt.Errorf("%w: sensor %q triggers the job it watches", lake.ErrConfiguration, s.Name)
		}
	}
	return nil
}
