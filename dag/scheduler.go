package dag

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// Scheduler runs DAGs on their cron schedules. A DAG never overlaps with
// its own previous run.
type Scheduler struct {
	// OnResult is called after every scheduled run.
	OnResult func(*RunResult, error)

	cron *gocron.Scheduler
	jobs map[string]*gocron.Job
}

// NewScheduler builds a Scheduler in UTC.
func NewScheduler() *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	return &Scheduler{cron: s, jobs: map[string]*gocron.Job{}}
}

// Register schedules d. Runs use ctx for logging and cancellation.
func (s *Scheduler) Register(ctx context.Context, d *DAG) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.Schedule == "" {
		return xerrors.Errorf("dag %s has no schedule", d.ID)
	}
	if d.Catchup {
		return xerrors.Errorf("dag %s: catchup is not supported", d.ID)
	}
	if _, ok := s.jobs[d.ID]; ok {
		return xerrors.Errorf("dag %s is already registered", d.ID)
	}

	job, err := s.cron.Cron(d.Schedule).Do(func() {
		log.Ctx(ctx).Info().Str("dag", d.ID).Msg("scheduled run started")

		r, err := d.Run(ctx)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("dag", d.ID).Msg("scheduled run failed")
		}

		if s.OnResult != nil {
			s.OnResult(r, err)
		}
	})
	if err != nil {
		return xerrors.Errorf("failed to schedule dag %s with %q: %w", d.ID, d.Schedule, err)
	}

	s.jobs[d.ID] = job

	return nil
}

// NextRun returns when the DAG id runs next.
func (s *Scheduler) NextRun(id string) (time.Time, bool) {
	job, ok := s.jobs[id]
	if !ok {
		return time.Time{}, false
	}
	return job.NextRun(), true
}

// Start runs the scheduler until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	log.Ctx(ctx).Info().Int("dags", len(s.jobs)).Msg("scheduler started")

	s.cron.StartAsync()

	<-ctx.Done()

	s.cron.Stop()
	log.Ctx(ctx).Info().Msg("scheduler stopped")
}
