package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pithecene-io/mlbstats/internal/config"
)

// Scheduler runs jobs on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	orch    *Orchestrator
	logger  *slog.Logger
	mu      sync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID // schedule name -> cron entry
}

// NewScheduler creates a scheduler over orch. Cron expressions are
// evaluated in UTC unless a schedule names a timezone.
func NewScheduler(orch *Orchestrator, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = orch.logger
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		orch:    orch,
		logger:  logger,
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers a schedule. The job must exist.
func (s *Scheduler) Add(sched config.Schedule) error {
	if _, err := s.orch.reg.Job(sched.Job); err != nil {
		return fmt.Errorf("pipeline: schedule %s: %w", sched.Name, err)
	}
	spec := sched.Cron
	if sched.Timezone != "" {
		spec = "CRON_TZ=" + sched.Timezone + " " + spec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[sched.Name]; dup {
		return fmt.Errorf("pipeline: duplicate schedule %s", sched.Name)
	}
	id, err := s.cron.AddFunc(spec, func() { s.tick(sched) })
	if err != nil {
		return fmt.Errorf("pipeline: schedule %s: cron %q: %w", sched.Name, spec, err)
	}
	s.entries[sched.Name] = id
	s.logger.Info("scheduled job", "schedule", sched.Name, "job", sched.Job, "cron", spec)
	return nil
}

// PartitionFor returns the partition a schedule runs when it fires at t:
// the job partition containing t, shifted by the schedule's offset.
func (s *Scheduler) PartitionFor(sched config.Schedule, t time.Time) (string, error) {
	job, err := s.orch.reg.Job(sched.Job)
	if err != nil {
		return "", err
	}
	if job.Partitions == nil {
		return "", nil
	}
	return job.Partitions.Offset(job.Partitions.Key(t), sched.PartitionOffset)
}

func (s *Scheduler) tick(sched config.Schedule) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	logger := s.logger.With("schedule", sched.Name, "job", sched.Job)
	partition, err := s.PartitionFor(sched, s.orch.now())
	if err != nil {
		logger.Warn("scheduled run skipped", "error", err)
		return
	}
	if _, err := s.orch.RunJob(ctx, sched.Job, partition); err != nil {
		logger.Warn("scheduled run failed", "partition", partition, "error", err)
	}
}

// Start begins firing schedules. Runs use ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler started", "schedules", len(s.entries))
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Upcoming is the next fire time of one schedule.
type Upcoming struct {
	Schedule string
	Next     time.Time
}

// Next lists the next fire time after now of each schedule, soonest first.
func (s *Scheduler) Next() []Upcoming {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.orch.now()
	out := make([]Upcoming, 0, len(s.entries))
	for name, id := range s.entries {
		out = append(out, Upcoming{Schedule: name, Next: s.cron.Entry(id).Schedule.Next(now)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Next.Equal(out[j].Next) {
			return out[i].Schedule < out[j].Schedule
		}
		return out[i].Next.Before(out[j].Next)
	})
	return out
}
