package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Mapping selects the upstream partitions a downstream partition reads.
// down is nil for unpartitioned steps, in which case downKey is "".
type Mapping interface {
	Upstream(down *Partitions, downKey string, up *Partitions, now time.Time) ([]string, error)
}

// Identity reads the upstream partition with the same key.
type Identity struct{}

// Upstream implements Mapping.
func (Identity) Upstream(down *Partitions, downKey string, up *Partitions, now time.Time) ([]string, error) {
	if down == nil || !down.Equal(up) {
		return nil, fmt.Errorf("%w: identity mapping needs matching partitions", ErrInvalidStep)
	}
	if !up.Exists(downKey, now) {
		return nil, fmt.Errorf("%w: upstream partition %s", ErrMissingUpstream, downKey)
	}
	return []string{downKey}, nil
}

// TimeWindow reads the upstream windows overlapping the downstream window,
// with the first and last upstream window shifted by StartOffset and
// EndOffset upstream partitions.
//
// Upstream windows before the upstream start or not yet complete are
// nonexistent: they are dropped when AllowNonexistent is set and fail the
// mapping otherwise.
type TimeWindow struct {
	StartOffset      int
	EndOffset        int
	AllowNonexistent bool
}

// Upstream implements Mapping.
func (m TimeWindow) Upstream(down *Partitions, downKey string, up *Partitions, now time.Time) ([]string, error) {
	if down == nil {
		return nil, fmt.Errorf("%w: time window mapping from an unpartitioned step", ErrInvalidStep)
	}
	ds, de, err := down.Window(downKey)
	if err != nil {
		return nil, err
	}

	from := up.shift(up.floor(ds), m.StartOffset)
	to := up.shift(up.ceil(de), m.EndOffset)

	var keys, missing []string
	for t := from; t.Before(to); t = up.shift(t, 1) {
		if t.Before(up.Start) || up.shift(t, 1).After(now) {
			missing = append(missing, up.Key(t))
			continue
		}
		keys = append(keys, up.Key(t))
	}
	if len(missing) > 0 && !m.AllowNonexistent {
		return nil, fmt.Errorf("%w: %s", ErrMissingUpstream, strings.Join(missing, ", "))
	}
	return keys, nil
}

// AllPartitions reads every existing upstream partition.
type AllPartitions struct{}

// Upstream implements Mapping.
func (AllPartitions) Upstream(_ *Partitions, _ string, up *Partitions, now time.Time) ([]string, error) {
	return up.Keys(now), nil
}
