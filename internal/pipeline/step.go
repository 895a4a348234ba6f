package pipeline

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/pithecene-io/mlbstats/lake"
)

// DefaultStepTimeout bounds one attempt of a step when Step.Timeout is zero.
const DefaultStepTimeout = 3600 * time.Second

// Handler computes a step's output from its loaded inputs.
//
// Returning a *lake.Table materializes it at the step's key and partition.
// Returning nil writes nothing (e.g. no games that day, or a step whose
// side effect happens elsewhere). Any other value fails with
// lake.ErrTypeMismatch.
type Handler func(ctx context.Context, sc *StepContext, inputs map[string]*lake.Table) (any, error)

// Input declares that a step reads another step's output.
type Input struct {
	// Name is the key under which the loaded table is passed to the handler.
	Name string

	// Step is the upstream step name.
	Step string

	// Mapping selects upstream partitions. Ignored when the upstream step is
	// unpartitioned. Default: Identity for partitioned steps reading
	// partitioned steps, AllPartitions for unpartitioned ones.
	Mapping Mapping
}

// Step is one materializable dataset.
type Step struct {
	// Namespace is the lake namespace. The step name is the namespace
	// joined with "/".
	Namespace   []string
	Group       string
	Description string

	// Partitions is nil for unpartitioned steps.
	Partitions *Partitions
	Inputs     []Input

	Timeout time.Duration
	Retries int
	Tags    map[string]string

	Handler Handler
}

// Name returns the step name, e.g. "raw/mlb/schedule".
func (s *Step) Name() string {
	return lake.NewKey(s.Namespace...).Name()
}

// Key returns the step's unpartitioned lake key.
func (s *Step) Key() lake.Key {
	return lake.NewKey(s.Namespace...)
}

func (s *Step) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultStepTimeout
}

// StepContext is passed to a handler for one attempt.
type StepContext struct {
	RunID     string
	Step      *Step
	Partition string

	// WindowStart and WindowEnd bound the partition; zero when unpartitioned.
	WindowStart time.Time
	WindowEnd   time.Time

	Attempt int
	Logger  *slog.Logger

	metadata map[string]any
}

// AddMetadata records a value reported with the step result.
func (c *StepContext) AddMetadata(key string, value any) {
	if c.metadata == nil {
		c.metadata = map[string]any{}
	}
	c.metadata[key] = value
}

// Metadata returns a copy of the recorded metadata.
func (c *StepContext) Metadata() map[string]any {
	return maps.Clone(c.metadata)
}
