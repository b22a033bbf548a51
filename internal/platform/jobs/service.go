package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"leaveflow/internal/platform/db"
)

const (
	JobTokenCleanup  = "token_cleanup"
	JobDataRetention = "data_retention"

	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var ErrUnknownJob = errors.New("unknown job")

// RunFunc performs one job run and returns details stored with the run.
type RunFunc func(context.Context) (any, error)

type Observer interface {
	ObserveJob(job, status string, duration time.Duration)
}

// Service runs named jobs on cron schedules, through a bounded queue, or
// synchronously. Every run is recorded in job_runs.
type Service struct {
	DB       db.Querier
	Observer Observer
	Now      func() time.Time

	mu    sync.Mutex
	jobs  map[string]RunFunc
	cron  *cron.Cron
	queue chan string
}

func New(q db.Querier) *Service {
	return &Service{
		DB:    q,
		Now:   time.Now,
		jobs:  map[string]RunFunc{},
		cron:  cron.New(),
		queue: make(chan string, 32),
	}
}

// Register adds a job. A non-empty schedule (standard cron or @every/@hourly
// descriptors) also schedules it once Start is called.
func (s *Service) Register(name, schedule string, run RunFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[name] = run
	if schedule == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.Enqueue(name) }); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Start runs the worker and the scheduler until ctx is done.
func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
}

func (s *Service) Enqueue(name string) {
	select {
	case s.queue <- name:
	default:
		slog.Warn("job queue full", "jobType", name)
	}
}

// RunNow runs a registered job synchronously.
func (s *Service) RunNow(ctx context.Context, name string) (any, error) {
	s.mu.Lock()
	run, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.runJob(ctx, name, run)
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case name := <-s.queue:
			if _, err := s.RunNow(ctx, name); err != nil {
				slog.Warn("job run failed", "jobType", name, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, name string, run RunFunc) (any, error) {
	started := s.Now()
	runID := ""
	if s.DB != nil {
		if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, status)
    VALUES ($1, $2)
    RETURNING id
  `, name, StatusRunning).Scan(&runID); err != nil {
			slog.Warn("job run insert failed", "jobType", name, "err", err)
		}
	}

	details, err := run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		details = map[string]any{"error": err.Error(), "details": details}
	}
	if s.Observer != nil {
		s.Observer.ObserveJob(name, status, s.Now().Sub(started))
	}

	if runID != "" {
		detailsJSON, marshalErr := json.Marshal(details)
		if marshalErr != nil {
			slog.Warn("job details marshal failed", "jobType", name, "err", marshalErr)
			detailsJSON = []byte("{}")
		}
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON, runID); updErr != nil {
			slog.Warn("job run update failed", "jobType", name, "err", updErr)
		}
	}
	slog.Info("job run finished", "jobType", name, "status", status, "durationMs", s.Now().Sub(started).Milliseconds())
	return details, err
}
