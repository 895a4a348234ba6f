package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrUnknownStep, ErrUnknownJob: the name is not registered.
	ErrUnknownStep = errors.New("unknown step")
	ErrUnknownJob  = errors.New("unknown job")

	// ErrUnknownPartition: the key is malformed or outside the scheme.
	ErrUnknownPartition = errors.New("unknown partition")

	// ErrInvalidStep: a step, job or sensor definition is inconsistent.
	ErrInvalidStep = errors.New("invalid step definition")

	// ErrCycle: step inputs form a cycle.
	ErrCycle = errors.New("dependency cycle")

	// ErrMissingUpstream: a required upstream partition does not exist.
	ErrMissingUpstream = errors.New("missing upstream partition")
)

// StepError reports the failure of one step for one partition.
type StepError struct {
	Step      string
	Partition string
	Attempts  int
	Err       error
}

func (e *StepError) Error() string {
	where := e.Step
	if e.Partition != "" {
		where += "[" + e.Partition + "]"
	}
	if e.Attempts > 1 {
		return fmt.Sprintf("pipeline: step %s failed after %d attempts: %v", where, e.Attempts, e.Err)
	}
	return fmt.Sprintf("pipeline: step %s: %v", where, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
