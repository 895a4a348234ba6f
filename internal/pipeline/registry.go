package pipeline

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/pithecene-io/mlbstats/lake"
)

// Job selects the steps of one group and runs them together.
type Job struct {
	Name  string
	Group string
	Steps []string // registration order

	// Partitions is shared by every partitioned step of the job; nil when
	// all steps are unpartitioned.
	Partitions *Partitions
}

// Registry holds steps and jobs. Build it once at startup, then treat it as
// read-only.
type Registry struct {
	steps map[string]*Step
	order []string
	jobs  map[string]*Job
	now   func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		steps: map[string]*Step{},
		jobs:  map[string]*Job{},
		now:   time.Now,
	}
}

// Register adds a step. Partition keys of the step's scheme are checked for
// collisions once their sanitized path components are known.
//
// A step may not live directly under the namespace of a partitioned step:
// its file would sit beside the partition files and could be read back as
// one (raw/a/20200101 against raw/a partitioned by day).
func (r *Registry) Register(s Step) error {
	key := s.Key()
	if err := key.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStep, err)
	}
	name := s.Name()
	if _, dup := r.steps[name]; dup {
		return fmt.Errorf("%w: duplicate step %s", ErrInvalidStep, name)
	}
	if s.Handler == nil {
		return fmt.Errorf("%w: step %s has no handler", ErrInvalidStep, name)
	}
	if s.Retries < 0 {
		return fmt.Errorf("%w: step %s has negative retries", ErrInvalidStep, name)
	}
	seen := map[string]bool{}
	for _, in := range s.Inputs {
		if in.Name == "" || in.Step == "" {
			return fmt.Errorf("%w: step %s has an unnamed input", ErrInvalidStep, name)
		}
		if seen[in.Name] {
			return fmt.Errorf("%w: step %s declares input %s twice", ErrInvalidStep, name, in.Name)
		}
		seen[in.Name] = true
	}
	if s.Partitions != nil {
		if err := lake.CheckPartitionKeys(s.Partitions.Keys(r.now())); err != nil {
			return fmt.Errorf("%w: step %s: %w", ErrInvalidStep, name, err)
		}
	}
	if err := r.checkNesting(&s); err != nil {
		return err
	}

	step := s
	r.steps[name] = &step
	r.order = append(r.order, name)
	return nil
}

// checkNesting rejects s when it is a direct child of a partitioned step's
// namespace, or when s is partitioned and an existing step is its direct
// child.
func (r *Registry) checkNesting(s *Step) error {
	name := s.Name()
	if len(s.Namespace) > 1 {
		parent := lake.NewKey(s.Namespace[:len(s.Namespace)-1]...).Name()
		if p, ok := r.steps[parent]; ok && p.Partitions != nil {
			return fmt.Errorf("%w: step %s: %w: nested under partitioned step %s",
				ErrInvalidStep, name, lake.ErrPartitionCollision, parent)
		}
	}
	if s.Partitions == nil {
		return nil
	}
	for _, other := range r.order {
		o := r.steps[other]
		if len(o.Namespace) == len(s.Namespace)+1 && slices.Equal(o.Namespace[:len(s.Namespace)], s.Namespace) {
			return fmt.Errorf("%w: step %s: %w: partitioned namespace already holds step %s",
				ErrInvalidStep, name, lake.ErrPartitionCollision, other)
		}
	}
	return nil
}

// MustRegister is Register that panics, for static step tables.
func (r *Registry) MustRegister(steps ...Step) {
	for _, s := range steps {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
}

// Step looks up a step by name.
func (r *Registry) Step(name string) (*Step, error) {
	s, ok := r.steps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, name)
	}
	return s, nil
}

// Steps returns all steps in registration order.
func (r *Registry) Steps() []*Step {
	out := make([]*Step, len(r.order))
	for i, name := range r.order {
		out[i] = r.steps[name]
	}
	return out
}

// DefineJob creates a job from every step in group. Partitioned steps of the
// job must share one partitioning scheme.
func (r *Registry) DefineJob(name, group string) (*Job, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: job needs a name", ErrInvalidStep)
	}
	if _, dup := r.jobs[name]; dup {
		return nil, fmt.Errorf("%w: duplicate job %s", ErrInvalidStep, name)
	}
	job := &Job{Name: name, Group: group}
	for _, stepName := range r.order {
		s := r.steps[stepName]
		if s.Group != group {
			continue
		}
		job.Steps = append(job.Steps, stepName)
		if s.Partitions == nil {
			continue
		}
		if job.Partitions == nil {
			job.Partitions = s.Partitions
		} else if !job.Partitions.Equal(s.Partitions) {
			return nil, fmt.Errorf("%w: job %s mixes %s and %s partitions",
				ErrInvalidStep, name, job.Partitions, s.Partitions)
		}
	}
	if len(job.Steps) == 0 {
		return nil, fmt.Errorf("%w: job %s selects no steps (group %q)", ErrInvalidStep, name, group)
	}
	r.jobs[name] = job
	return job, nil
}

// Job looks up a job by name.
func (r *Registry) Job(name string) (*Job, error) {
	j, ok := r.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return j, nil
}

// Jobs returns all jobs sorted by name.
func (r *Registry) Jobs() []*Job {
	out := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	slices.SortFunc(out, func(a, b *Job) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Validate checks that every input names a registered step and that the
// graph is acyclic.
func (r *Registry) Validate() error {
	_, err := r.Levels(r.order...)
	return err
}

// Levels orders the named steps with Kahn's algorithm. Each level depends
// only on earlier levels; steps within a level keep registration order.
// Inputs from steps outside names are treated as already materialized.
func (r *Registry) Levels(names ...string) ([][]string, error) {
	if len(names) == 0 {
		return nil, nil
	}

	selected := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := r.steps[n]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStep, n)
		}
		selected[n] = true
	}

	inDegree := make(map[string]int, len(names))
	dependents := make(map[string][]string)
	for _, n := range r.order {
		if !selected[n] {
			continue
		}
		for _, in := range r.steps[n].Inputs {
			if _, ok := r.steps[in.Step]; !ok {
				return nil, fmt.Errorf("%w: step %s reads unknown step %s", ErrUnknownStep, n, in.Step)
			}
			if in.Step == n {
				return nil, fmt.Errorf("%w: step %s reads itself", ErrCycle, n)
			}
			if !selected[in.Step] {
				continue
			}
			dependents[in.Step] = append(dependents[in.Step], n)
			inDegree[n]++
		}
	}

	var levels [][]string
	queue := r.inOrder(func(n string) bool { return selected[n] && inDegree[n] == 0 })
	processed := 0
	for len(queue) > 0 {
		levels = append(levels, queue)
		processed += len(queue)

		next := map[string]bool{}
		for _, n := range queue {
			for _, dep := range dependents[n] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next[dep] = true
				}
			}
		}
		queue = r.inOrder(func(n string) bool { return next[n] })
	}

	if processed != len(selected) {
		return nil, fmt.Errorf("%w among %v", ErrCycle, names)
	}
	return levels, nil
}

func (r *Registry) inOrder(keep func(string) bool) []string {
	var out []string
	for _, n := range r.order {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}
