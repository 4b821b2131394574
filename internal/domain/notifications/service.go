package notifications

import (
	"context"
	"fmt"

	"montero/internal/platform/logger"
	"montero/internal/requestctx"
)

type Service struct {
	store StoreAPI
}

func New(store StoreAPI) *Service {
	return &Service{store: store}
}

// Notify stores a notice and logs it. Failures are logged and returned; the
// worker treats them as non-fatal.
func (s *Service) Notify(ctx context.Context, n Notice) (Notice, error) {
	saved, err := s.store.Create(ctx, n)
	if err != nil {
		logger.C(ctx).Warn().Err(err).Str("kind", n.Kind).Msg("operator notice not stored")
		return Notice{}, err
	}
	logger.C(logContext(ctx, saved.JobID)).Warn().
		Str("notice_id", saved.ID).
		Str("kind", saved.Kind).
		Str("platform", saved.Platform).
		Msg(saved.Title)
	return saved, nil
}

// logContext attaches the notice's job id unless the caller already scoped
// ctx to a job, so the log line carries job_id once.
func logContext(ctx context.Context, jobID string) context.Context {
	if jobID == "" || requestctx.GetJobID(ctx) != "" {
		return ctx
	}
	return requestctx.WithJobID(ctx, jobID)
}

// CredentialRejected raises the notice operators act on when a portal refuses
// the stored login.
func (s *Service) CredentialRejected(ctx context.Context, jobID, platform, detail string) error {
	_, err := s.Notify(ctx, Notice{
		Kind:     KindCredentialRejected,
		JobID:    jobID,
		Platform: platform,
		Title:    fmt.Sprintf("Credenciales rechazadas por %s", platform),
		Body:     detail,
	})
	return err
}

func (s *Service) JobFailedPermanent(ctx context.Context, jobID, platform, detail string) error {
	_, err := s.Notify(ctx, Notice{
		Kind:     KindJobFailedPermanent,
		JobID:    jobID,
		Platform: platform,
		Title:    fmt.Sprintf("Trabajo %s falló de forma definitiva", jobID),
		Body:     detail,
	})
	return err
}

func (s *Service) List(ctx context.Context, unreadOnly bool, limit, offset int) ([]Notice, error) {
	return s.store.List(ctx, unreadOnly, limit, offset)
}

func (s *Service) Count(ctx context.Context, unreadOnly bool) (int, error) {
	return s.store.Count(ctx, unreadOnly)
}

func (s *Service) MarkRead(ctx context.Context, id string) error {
	return s.store.MarkRead(ctx, id)
}
