package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/mlbstats/internal/config"
	"github.com/pithecene-io/mlbstats/internal/normalize"
	"github.com/pithecene-io/mlbstats/lake"
)

// Orchestrator runs steps and jobs: it loads inputs through the I/O manager,
// calls handlers with retries and a timeout, and stores their output.
type Orchestrator struct {
	reg     *Registry
	io      *lake.IOManager
	logger  *slog.Logger
	now     func() time.Time
	backoff time.Duration
	sensors []config.Sensor
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the run logger. Default: discard.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now, which decides which partitions exist.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRetryBackoff sets the wait before the first retry; it doubles on each
// further retry. Default: 1s.
func WithRetryBackoff(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.backoff = d }
}

// WithSensors installs run-status sensors: after a successful run of
// Watch, the orchestrator runs Target.
func WithSensors(sensors ...config.Sensor) OrchestratorOption {
	return func(o *Orchestrator) { o.sensors = append(o.sensors, sensors...) }
}

// NewOrchestrator validates the registry and sensors.
func NewOrchestrator(reg *Registry, iom *lake.IOManager, opts ...OrchestratorOption) (*Orchestrator, error) {
	if reg == nil || iom == nil {
		return nil, errors.New("pipeline: registry and I/O manager are required")
	}
	o := &Orchestrator{
		reg:     reg,
		io:      iom,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
		backoff: time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	for _, s := range o.sensors {
		for _, job := range []string{s.Watch, s.Target} {
			if _, err := reg.Job(job); err != nil {
				return nil, fmt.Errorf("pipeline: sensor %s: %w", s.Name, err)
			}
		}
	}
	return o, nil
}

// Registry returns the step registry.
func (o *Orchestrator) Registry() *Registry { return o.reg }

// Now returns the orchestrator's clock reading.
func (o *Orchestrator) Now() time.Time { return o.now() }

// StepResult describes one step execution.
type StepResult struct {
	RunID     string
	Step      string
	Partition string

	// Materialization is nil when the handler returned no output.
	Materialization *lake.Materialization
	Summary         []normalize.ColumnSummary
	Metadata        map[string]any

	Attempts int
	Elapsed  time.Duration
}

// RunStep materializes one step for one partition ("" when unpartitioned).
func (o *Orchestrator) RunStep(ctx context.Context, name, partition string) (*StepResult, error) {
	s, err := o.reg.Step(name)
	if err != nil {
		return nil, err
	}
	return o.runStep(ctx, uuid.NewString(), s, partition)
}

func (o *Orchestrator) runStep(ctx context.Context, runID string, s *Step, partition string) (*StepResult, error) {
	name := s.Name()
	logger := o.logger.With("run_id", runID, "step", name, "partition", partition)
	fail := func(attempts int, err error) (*StepResult, error) {
		logger.Error("step failed", "attempts", attempts, "error", err)
		return nil, &StepError{Step: name, Partition: partition, Attempts: attempts, Err: err}
	}

	sc := &StepContext{RunID: runID, Step: s, Partition: partition, Logger: logger}
	switch {
	case s.Partitions == nil && partition != "":
		return fail(0, fmt.Errorf("%w: step is unpartitioned, got %q", ErrUnknownPartition, partition))
	case s.Partitions != nil && partition == "":
		return fail(0, fmt.Errorf("%w: step needs a %s partition", ErrUnknownPartition, s.Partitions.Granularity))
	case s.Partitions != nil:
		start, end, err := s.Partitions.Window(partition)
		if err != nil {
			return fail(0, err)
		}
		sc.WindowStart, sc.WindowEnd = start, end
	}

	began := time.Now()
	inputs, err := o.loadInputs(ctx, s, partition)
	if err != nil {
		return fail(0, err)
	}

	var out any
	attempts := 0
	for attempt := range s.Retries + 1 {
		if attempt > 0 {
			wait := o.backoff << (attempt - 1)
			logger.Info("retrying step", "attempt", attempt+1, "backoff", wait)
			select {
			case <-ctx.Done():
				return fail(attempts, ctx.Err())
			case <-time.After(wait):
			}
		}
		attempts++
		sc.Attempt = attempts
		out, err = o.attempt(ctx, s, sc, inputs)
		if err == nil || ctx.Err() != nil {
			break
		}
		logger.Warn("step attempt failed", "attempt", attempts, "error", err)
	}
	if err != nil {
		return fail(attempts, err)
	}

	mat, err := o.io.Store(ctx, s.Key().WithPartition(partition), out)
	if err != nil {
		return fail(attempts, err)
	}

	res := &StepResult{
		RunID:           runID,
		Step:            name,
		Partition:       partition,
		Materialization: mat,
		Metadata:        sc.Metadata(),
		Attempts:        attempts,
		Elapsed:         time.Since(began),
	}
	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	res.Metadata["load_time"] = res.Elapsed.Seconds()
	if mat == nil {
		res.Metadata["rows"] = 0
		logger.Info("step produced no output", "elapsed", res.Elapsed)
		return res, nil
	}

	res.Summary = normalize.Summarize(out.(*lake.Table))
	res.Metadata["rows"] = mat.Rows
	res.Metadata["columns"] = mat.Columns
	res.Metadata["column_names"] = mat.ColumnNames
	logger.Info("step materialized",
		"path", mat.Path.String(), "rows", mat.Rows, "columns", mat.Columns,
		"bytes", mat.SizeBytes, "elapsed", res.Elapsed)
	logger.Debug("step summary", "summary", normalize.Markdown(res.Summary))
	return res, nil
}

// attempt runs the handler once under the step timeout. Panics become
// errors.
func (o *Orchestrator) attempt(ctx context.Context, s *Step, sc *StepContext, inputs map[string]*lake.Table) (out any, err error) {
	timeout := s.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("handler panicked: %v", r)
		}
	}()

	out, err = s.Handler(ctx, sc, inputs)
	if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("exceeded timeout of %s: %w", timeout, ctx.Err())
	}
	return out, err
}

// loadInputs reads every declared input for the partition.
func (o *Orchestrator) loadInputs(ctx context.Context, s *Step, partition string) (map[string]*lake.Table, error) {
	inputs := make(map[string]*lake.Table, len(s.Inputs))
	for _, in := range s.Inputs {
		up, err := o.reg.Step(in.Step)
		if err != nil {
			return nil, err
		}

		if up.Partitions == nil {
			t, err := o.io.Load(ctx, up.Key())
			if err != nil {
				return nil, fmt.Errorf("input %s: %w", in.Name, err)
			}
			inputs[in.Name] = t
			continue
		}

		mapping := in.Mapping
		if mapping == nil {
			mapping = Identity{}
			if s.Partitions == nil {
				mapping = AllPartitions{}
			}
		}
		keys, err := mapping.Upstream(s.Partitions, partition, up.Partitions, o.now())
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in.Name, err)
		}
		t, err := o.io.LoadPartitions(ctx, lake.PartitionRequest{Namespace: up.Namespace, Keys: keys})
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in.Name, err)
		}
		inputs[in.Name] = t
	}
	return inputs, nil
}

// RunStatus is the outcome of a job run.
type RunStatus int

// Run outcomes.
const (
	RunSuccess RunStatus = iota
	RunFailure
)

func (s RunStatus) String() string {
	if s == RunSuccess {
		return "SUCCESS"
	}
	return "FAILURE"
}

// RunResult describes one job run.
type RunResult struct {
	RunID     string
	Job       string
	Partition string
	Status    RunStatus
	Steps     []*StepResult

	// Skipped lists steps not run because an earlier level failed.
	Skipped []string

	// Triggered holds runs started by sensors watching this job.
	Triggered []*RunResult

	Err error
}

type (
	sensorChainKey struct{}
	noSensorsKey   struct{}
)

// RunJob runs every step of a job for one partition, level by level.
// Partitioned steps receive partition; unpartitioned steps run once. When a
// level fails, later levels are skipped. After a successful run, sensors
// watching the job start their target jobs.
func (o *Orchestrator) RunJob(ctx context.Context, name, partition string) (*RunResult, error) {
	job, err := o.reg.Job(name)
	if err != nil {
		return nil, err
	}
	if job.Partitions == nil && partition != "" {
		return nil, fmt.Errorf("%w: job %s is unpartitioned, got %q", ErrUnknownPartition, name, partition)
	}
	if job.Partitions != nil {
		if _, err := job.Partitions.Parse(partition); err != nil {
			return nil, fmt.Errorf("job %s: %w", name, err)
		}
	}
	levels, err := o.reg.Levels(job.Steps...)
	if err != nil {
		return nil, err
	}

	res := &RunResult{RunID: uuid.NewString(), Job: name, Partition: partition}
	logger := o.logger.With("run_id", res.RunID, "job", name, "partition", partition)
	logger.Info("job run started", "steps", len(job.Steps))

	var errs []error
	for _, level := range levels {
		if len(errs) > 0 {
			res.Skipped = append(res.Skipped, level...)
			continue
		}
		for _, stepName := range level {
			s, _ := o.reg.Step(stepName)
			stepPartition := partition
			if s.Partitions == nil {
				stepPartition = ""
			}
			sr, err := o.runStep(ctx, res.RunID, s, stepPartition)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			res.Steps = append(res.Steps, sr)
		}
	}

	res.Err = errors.Join(errs...)
	if res.Err != nil {
		res.Status = RunFailure
		logger.Error("job run failed", "skipped", res.Skipped, "error", res.Err)
		return res, res.Err
	}
	logger.Info("job run succeeded")

	res.Triggered = o.fireSensors(ctx, job, partition, logger)
	return res, nil
}

// fireSensors runs the targets of sensors watching job. A target already
// running in the current sensor chain is skipped.
func (o *Orchestrator) fireSensors(ctx context.Context, job *Job, partition string, logger *slog.Logger) []*RunResult {
	if ctx.Value(noSensorsKey{}) != nil {
		return nil
	}
	chain, _ := ctx.Value(sensorChainKey{}).([]string)
	chain = append(slices.Clone(chain), job.Name)

	var triggered []*RunResult
	for _, s := range o.sensors {
		if s.Watch != job.Name {
			continue
		}
		if slices.Contains(chain, s.Target) {
			logger.Warn("sensor target already in chain, not triggering", "sensor", s.Name, "target", s.Target)
			continue
		}
		target, err := o.reg.Job(s.Target)
		if err != nil {
			logger.Error("sensor target missing", "sensor", s.Name, "error", err)
			continue
		}
		targetPartition, err := o.mapPartition(job, partition, target)
		if err != nil {
			logger.Warn("sensor skipped", "sensor", s.Name, "target", s.Target, "error", err)
			continue
		}

		logger.Info("sensor triggered", "sensor", s.Name, "target", s.Target, "target_partition", targetPartition)
		run, err := o.RunJob(context.WithValue(ctx, sensorChainKey{}, chain), s.Target, targetPartition)
		if run != nil {
			triggered = append(triggered, run)
		}
		if err != nil {
			logger.Warn("sensor run failed", "sensor", s.Name, "target", s.Target, "error", err)
		}
	}
	return triggered
}

// mapPartition picks the target job partition containing the start of the
// source partition, or the latest complete target partition when the
// source is unpartitioned.
func (o *Orchestrator) mapPartition(source *Job, partition string, target *Job) (string, error) {
	if target.Partitions == nil {
		return "", nil
	}
	if source.Partitions == nil || partition == "" {
		keys := target.Partitions.Keys(o.now())
		if len(keys) == 0 {
			return "", fmt.Errorf("%w: %s has no complete partitions", ErrUnknownPartition, target.Name)
		}
		return keys[len(keys)-1], nil
	}
	start, err := source.Partitions.Parse(partition)
	if err != nil {
		return "", err
	}
	key := target.Partitions.Key(start)
	if _, err := target.Partitions.Parse(key); err != nil {
		return "", err
	}
	return key, nil
}

// Backfill runs a partitioned job for every partition from first to last
// inclusive, oldest first. Failed partitions do not stop the backfill.
// Sensors do not fire during a backfill.
func (o *Orchestrator) Backfill(ctx context.Context, name, first, last string) ([]*RunResult, error) {
	job, err := o.reg.Job(name)
	if err != nil {
		return nil, err
	}
	if job.Partitions == nil {
		return nil, fmt.Errorf("%w: job %s is unpartitioned", ErrUnknownPartition, name)
	}
	keys, err := job.Partitions.Range(first, last)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, noSensorsKey{}, true)
	var (
		results []*RunResult
		errs    []error
	)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		run, err := o.RunJob(ctx, name, key)
		if run != nil {
			results = append(results, run)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	o.logger.Info("backfill finished", "job", name, "partitions", len(keys), "failed", len(errs))
	return results, errors.Join(errs...)
}
