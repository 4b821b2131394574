package rpa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"montero/internal/domain/artifacts"
	"montero/internal/platform/logger"
	"montero/internal/platform/metrics"
	"montero/internal/platform/validate"
)

// EnqueueRequest is what a caller submits to the dispatcher.
type EnqueueRequest struct {
	Action         Action          `json:"action" validate:"required"`
	Platform       string          `json:"platform" validate:"required,platform"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty" validate:"omitempty,max=128,printascii"`
}

// Service is the request/poll surface over the job store. It never touches
// the browser subsystem.
type Service struct {
	store       StoreAPI
	artifacts   artifacts.Reader
	maxAttempts int
	metrics     *metrics.Collector
}

func NewService(store StoreAPI, arts artifacts.Reader, maxAttempts int, m *metrics.Collector) *Service {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Service{store: store, artifacts: arts, maxAttempts: maxAttempts, metrics: m}
}

// Enqueue validates and queues a job. created is false when the idempotency
// key matched an earlier submission.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (Job, bool, error) {
	req.Platform = strings.TrimSpace(req.Platform)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if !req.Action.Valid() {
		return Job{}, false, fmt.Errorf("%w: unknown action %q", ErrInvalidJob, req.Action)
	}
	issues, err := validate.Struct(req)
	if err != nil {
		return Job{}, false, err
	}
	if len(issues) > 0 {
		return Job{}, false, fmt.Errorf("%w: %s", ErrInvalidJob, validate.Summary(issues))
	}
	if err := ValidatePayload(req.Action, req.Payload); err != nil {
		return Job{}, false, err
	}

	job, created, err := s.store.Submit(ctx, NewJob{
		Action:         req.Action,
		Platform:       req.Platform,
		Payload:        req.Payload,
		MaxAttempts:    s.maxAttempts,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return Job{}, false, err
	}
	if created {
		s.metrics.JobSubmitted(string(job.Action), job.Platform)
		logger.C(ctx).Info().Str("job_id", job.ID).Str("action", string(job.Action)).Str("platform", job.Platform).Msg("job queued")
	}
	return job, created, nil
}

func (s *Service) Status(ctx context.Context, id string) (StatusView, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	return job.View(), nil
}

func (s *Service) Get(ctx context.Context, id string) (Job, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Artifact(ctx context.Context, ref string) (artifacts.Artifact, error) {
	if s.artifacts == nil {
		return artifacts.Artifact{}, artifacts.ErrArtifactNotFound
	}
	art, err := s.artifacts.Get(ctx, ref)
	if errors.Is(err, artifacts.ErrInvalidRef) {
		return artifacts.Artifact{}, artifacts.ErrArtifactNotFound
	}
	return art, err
}

func (s *Service) Cancel(ctx context.Context, id string) error {
	if err := s.store.Cancel(ctx, id); err != nil {
		return err
	}
	logger.C(ctx).Info().Str("job_id", id).Msg("job cancelled")
	return nil
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]StatusView, int, error) {
	total, err := s.store.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	jobs, err := s.store.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]StatusView, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, job.View())
	}
	return out, total, nil
}
