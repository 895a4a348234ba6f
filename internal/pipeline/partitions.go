// Package pipeline registers partitioned steps, resolves their dependency
// graph, and runs them against the lake I/O manager.
package pipeline

import (
	"fmt"
	"time"
)

// Granularity is the width of one time-window partition.
type Granularity int

// Supported granularities.
const (
	Hourly Granularity = iota + 1
	Daily
	Monthly
)

func (g Granularity) String() string {
	switch g {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	case Monthly:
		return "monthly"
	default:
		return fmt.Sprintf("granularity(%d)", int(g))
	}
}

// layout is the partition key format. Monthly keys name the first day of
// the month.
func (g Granularity) layout() string {
	if g == Hourly {
		return "2006-01-02-15:04"
	}
	return time.DateOnly
}

// Partitions is a time-window partitioning scheme in UTC: consecutive
// windows of one granularity beginning at Start.
type Partitions struct {
	Granularity Granularity
	Start       time.Time
}

// NewPartitions creates a scheme whose first window contains start.
func NewPartitions(g Granularity, start time.Time) *Partitions {
	p := &Partitions{Granularity: g}
	p.Start = p.floor(start)
	return p
}

// HourlyFrom returns hourly partitions starting at midnight UTC of the date.
func HourlyFrom(year int, month time.Month, day int) *Partitions {
	return NewPartitions(Hourly, time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DailyFrom returns daily partitions starting at the date.
func DailyFrom(year int, month time.Month, day int) *Partitions {
	return NewPartitions(Daily, time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// MonthlyFrom returns monthly partitions starting with the month of the date.
func MonthlyFrom(year int, month time.Month, day int) *Partitions {
	return NewPartitions(Monthly, time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

func (p *Partitions) String() string {
	return p.Granularity.String() + " from " + p.Start.Format(p.Granularity.layout())
}

// Equal reports whether two schemes produce the same keys.
func (p *Partitions) Equal(o *Partitions) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.Granularity == o.Granularity && p.Start.Equal(o.Start)
}

func (p *Partitions) floor(t time.Time) time.Time {
	t = t.UTC()
	switch p.Granularity {
	case Hourly:
		return t.Truncate(time.Hour)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// ceil returns the first window start at or after t.
func (p *Partitions) ceil(t time.Time) time.Time {
	f := p.floor(t)
	if f.Equal(t) {
		return f
	}
	return p.shift(f, 1)
}

func (p *Partitions) shift(t time.Time, n int) time.Time {
	switch p.Granularity {
	case Hourly:
		return t.Add(time.Duration(n) * time.Hour)
	case Monthly:
		return t.AddDate(0, n, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}

// Key returns the key of the window containing t. The window may precede
// Start.
func (p *Partitions) Key(t time.Time) string {
	return p.floor(t).Format(p.Granularity.layout())
}

// Parse returns the start of the window named by key.
func (p *Partitions) Parse(key string) (time.Time, error) {
	t, err := time.ParseInLocation(p.Granularity.layout(), key, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a %s key", ErrUnknownPartition, key, p.Granularity)
	}
	if !p.floor(t).Equal(t) || t.Before(p.Start) {
		return time.Time{}, fmt.Errorf("%w: %q is not in %s", ErrUnknownPartition, key, p)
	}
	return t, nil
}

// Window returns the [start, end) interval of the partition.
func (p *Partitions) Window(key string) (start, end time.Time, err error) {
	start, err = p.Parse(key)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, p.shift(start, 1), nil
}

// Exists reports whether key names a window that has fully elapsed at now.
func (p *Partitions) Exists(key string, now time.Time) bool {
	_, end, err := p.Window(key)
	return err == nil && !end.After(now)
}

// Keys returns every complete partition up to now, oldest first.
func (p *Partitions) Keys(now time.Time) []string {
	var keys []string
	for t := p.Start; !p.shift(t, 1).After(now); t = p.shift(t, 1) {
		keys = append(keys, p.Key(t))
	}
	return keys
}

// Range returns the keys from first to last inclusive.
func (p *Partitions) Range(first, last string) ([]string, error) {
	from, err := p.Parse(first)
	if err != nil {
		return nil, err
	}
	to, err := p.Parse(last)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range %s..%s is reversed", ErrUnknownPartition, first, last)
	}
	var keys []string
	for t := from; !t.After(to); t = p.shift(t, 1) {
		keys = append(keys, p.Key(t))
	}
	return keys, nil
}

// Offset returns the key n windows after key (n may be negative).
func (p *Partitions) Offset(key string, n int) (string, error) {
	t, err := p.Parse(key)
	if err != nil {
		return "", err
	}
	shifted := p.shift(t, n)
	if shifted.Before(p.Start) {
		return "", fmt.Errorf("%w: %s offset %d precedes %s", ErrUnknownPartition, key, n, p)
	}
	return p.Key(shifted), nil
}
