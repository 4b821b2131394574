package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"montero/internal/platform/db"
	"montero/internal/platform/logger"
	"montero/internal/platform/metrics"
)

const (
	JobPromoteDue = "promote_due"
	JobReapStale  = "reap_stale"
	JobPruneRuns  = "prune_runs"

	defaultRunRetention = 7 * 24 * time.Hour
)

// JobQueue is the slice of the job store the scheduler drives.
type JobQueue interface {
	PromoteDue(ctx context.Context) (int, error)
	ReapStale(ctx context.Context, olderThan time.Duration) (int, error)
}

type Config struct {
	Interval   time.Duration
	StaleAfter time.Duration
	// RunRetention bounds how long maintenance_runs rows are kept. Zero
	// means seven days.
	RunRetention time.Duration
}

type Service struct {
	DB      db.DB
	Queue   JobQueue
	Cfg     Config
	Metrics *metrics.Collector
	now     func() time.Time
}

type job struct {
	Type string
	Run  func(context.Context) (any, error)
}

func New(conn db.DB, queue JobQueue, cfg Config, m *metrics.Collector) *Service {
	if cfg.RunRetention <= 0 {
		cfg.RunRetention = defaultRunRetention
	}
	return &Service{DB: conn, Queue: queue, Cfg: cfg, Metrics: m, now: time.Now}
}

// Start runs the maintenance loop until ctx is cancelled. A zero interval
// disables it.
func (s *Service) Start(ctx context.Context) {
	if s.Cfg.Interval <= 0 {
		logger.Named("jobs").Info().Msg("maintenance scheduler disabled")
		return
	}
	go s.schedule(ctx, s.Cfg.Interval)
}

// Tick runs every maintenance job once, in order, and returns the first error.
func (s *Service) Tick(ctx context.Context) error {
	var first error
	for _, j := range s.jobs() {
		if _, err := s.runJob(ctx, j); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *Service) jobs() []job {
	return []job{
		{Type: JobReapStale, Run: func(ctx context.Context) (any, error) {
			n, err := s.Queue.ReapStale(ctx, s.Cfg.StaleAfter)
			return map[string]any{"reaped": n, "staleAfterSec": int(s.Cfg.StaleAfter.Seconds())}, err
		}},
		{Type: JobPromoteDue, Run: func(ctx context.Context) (any, error) {
			n, err := s.Queue.PromoteDue(ctx)
			return map[string]any{"promoted": n}, err
		}},
		{Type: JobPruneRuns, Run: func(ctx context.Context) (any, error) {
			n, err := s.pruneRuns(ctx)
			return map[string]any{"pruned": n, "retentionSec": int(s.Cfg.RunRetention.Seconds())}, err
		}},
	}
}

// pruneRuns deletes maintenance runs that started before the retention window.
func (s *Service) pruneRuns(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.Cfg.RunRetention)
	return s.DB.Exec(ctx, `DELETE FROM maintenance_runs WHERE started_at < $1`, cutoff)
}

func (s *Service) schedule(ctx context.Context, interval time.Duration) {
	log := logger.Named("jobs")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("maintenance tick failed")
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	log := logger.Named("jobs")
	runID := uuid.NewString()
	if _, err := s.DB.Exec(ctx, `
    INSERT INTO maintenance_runs (id, job_type, status, started_at)
    VALUES ($1, $2, $3, $4)
  `, runID, j.Type, "running", s.now().UTC()); err != nil {
		log.Warn().Err(err).Str("job_type", j.Type).Msg("maintenance run insert failed")
		runID = ""
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	s.Metrics.MaintenanceRun(j.Type, status)

	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		log.Warn().Err(marshalErr).Msg("maintenance details marshal failed")
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE maintenance_runs
      SET status = $1, details_json = $2, completed_at = $3
      WHERE id = $4
    `, status, string(detailsJSON), s.now().UTC(), runID); updErr != nil {
			log.Warn().Err(updErr).Msg("maintenance run update failed")
		}
	}
	if err != nil {
		log.Warn().Err(err).Str("job_type", j.Type).Msg("maintenance job failed")
	} else {
		log.Debug().Str("job_type", j.Type).RawJSON("details", detailsJSON).Msg("maintenance job completed")
	}
	return details, err
}

// Run is a recorded maintenance execution.
type Run struct {
	ID          string          `json:"id"`
	JobType     string          `json:"jobType"`
	Status      string          `json:"status"`
	Details     json.RawMessage `json:"details"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Recent lists the latest maintenance runs, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.Query(ctx, `
    SELECT id, job_type, status, details_json, started_at, completed_at
    FROM maintenance_runs
    ORDER BY started_at DESC
    LIMIT $1
  `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var details string
		if err := rows.Scan(&r.ID, &r.JobType, &r.Status, &details, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, err
		}
		r.Details = json.RawMessage(details)
		out = append(out, r)
	}
	return out, rows.Err()
}
