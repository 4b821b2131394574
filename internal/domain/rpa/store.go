package rpa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"montero/internal/platform/db"
)

// Store is the durable job queue. Every status change is a conditional update
// on the current status, so concurrent workers never both win a transition.
type Store struct {
	DB      db.DB
	Backoff Backoff
	Now     func() time.Time
}

func NewStore(conn db.DB, backoff Backoff) *Store {
	return &Store{DB: conn, Backoff: backoff, Now: time.Now}
}

func (s *Store) now() time.Time {
	return s.Now().UTC()
}

const jobColumns = `id, action, platform, payload_json, status, submitted_at, started_at, finished_at,
  attempts, max_attempts, not_before, last_error, error_kind, result_message, artifact_ref, worker_id,
  COALESCE(idempotency_key, ''), updated_at`

func scanJob(row db.Row) (Job, error) {
	var j Job
	var action, status, kind, payload string
	err := row.Scan(&j.ID, &action, &j.Platform, &payload, &status, &j.SubmittedAt, &j.StartedAt, &j.FinishedAt,
		&j.Attempts, &j.MaxAttempts, &j.NotBefore, &j.LastError, &kind, &j.Result.Message, &j.Result.ArtifactRef, &j.WorkerID,
		&j.IdempotencyKey, &j.UpdatedAt)
	if err != nil {
		return Job{}, err
	}
	j.Action = Action(action)
	j.Status = Status(status)
	j.ErrorKind = Kind(kind)
	j.Payload = []byte(payload)
	return j, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Submit creates a QUEUED job. A repeated idempotency key returns the job
// created first and false.
func (s *Store) Submit(ctx context.Context, nj NewJob) (Job, bool, error) {
	if nj.IdempotencyKey != "" {
		existing, err := s.byIdempotencyKey(ctx, nj.IdempotencyKey)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, ErrJobNotFound) {
			return Job{}, false, err
		}
	}

	maxAttempts := nj.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	var key any
	if nj.IdempotencyKey != "" {
		key = nj.IdempotencyKey
	}
	now := s.now()
	id := uuid.NewString()

	job, err := scanJob(s.DB.QueryRow(ctx, `
    INSERT INTO rpa_jobs (id, action, platform, payload_json, status, submitted_at, attempts, max_attempts, not_before, idempotency_key, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,0,$7,$6,$8,$6)
    RETURNING `+jobColumns,
		id, string(nj.Action), nj.Platform, string(nj.Payload), string(StatusQueued), now, maxAttempts, key))
	if err != nil {
		if nj.IdempotencyKey != "" && db.IsUniqueViolation(err) {
			existing, getErr := s.byIdempotencyKey(ctx, nj.IdempotencyKey)
			if getErr != nil {
				return Job{}, false, getErr
			}
			return existing, false, nil
		}
		return Job{}, false, err
	}
	return job, true, nil
}

func (s *Store) byIdempotencyKey(ctx context.Context, key string) (Job, error) {
	job, err := scanJob(s.DB.QueryRow(ctx, "SELECT "+jobColumns+" FROM rpa_jobs WHERE idempotency_key = $1", key))
	if errors.Is(err, db.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	return job, err
}

// Claim moves the oldest eligible QUEUED job to RUNNING for workerID and
// returns it, or nil when nothing is claimable. Retryable jobs whose backoff
// elapsed are promoted first.
func (s *Store) Claim(ctx context.Context, workerID string, platforms []string) (*Job, error) {
	if _, err := s.PromoteDue(ctx); err != nil {
		return nil, err
	}

	now := s.now()
	args := []any{workerID, now}
	filter := ""
	if len(platforms) > 0 {
		filter = " AND platform IN (" + db.Placeholders(3, len(platforms)) + ")"
		for _, p := range platforms {
			args = append(args, p)
		}
	}

	query := `
    UPDATE rpa_jobs
    SET status = 'RUNNING', worker_id = $1, started_at = $2, updated_at = $2
    WHERE id = (
      SELECT id FROM rpa_jobs
      WHERE status = 'QUEUED' AND not_before <= $2` + filter + `
      ORDER BY submitted_at, id
      LIMIT 1` + db.ForUpdateSkipLocked(s.DB.Dialect()) + `
    ) AND status = 'QUEUED'
    RETURNING ` + jobColumns

	job, err := scanJob(s.DB.QueryRow(ctx, query, args...))
	if errors.Is(err, db.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Complete records a successful attempt. Only the worker holding the lease may
// complete the job.
func (s *Store) Complete(ctx context.Context, id, workerID string, res Result) error {
	if !validID(id) {
		return ErrJobNotFound
	}
	now := s.now()
	n, err := s.DB.Exec(ctx, `
    UPDATE rpa_jobs
    SET status = 'SUCCEEDED', finished_at = $2, updated_at = $2, result_message = $3, artifact_ref = $4,
        last_error = '', error_kind = ''
    WHERE id = $1 AND status = 'RUNNING' AND worker_id = $5
  `, id, now, res.Message, res.ArtifactRef, workerID)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.leaseError(ctx, s.DB, id, workerID, StatusSucceeded)
	}
	return nil
}

// Fail records a failed attempt by the worker holding the lease. Retryable
// failures go back to the queue after a backoff until max_attempts is reached;
// everything else is permanent. Interrupted attempts are re-queued at once and
// do not count.
func (s *Store) Fail(ctx context.Context, id, workerID string, f Failure) (Status, error) {
	if !validID(id) {
		return "", ErrJobNotFound
	}
	var next Status
	err := s.DB.InTx(ctx, func(q db.Querier) error {
		var status, owner string
		var attempts, maxAttempts int
		err := q.QueryRow(ctx, "SELECT status, attempts, max_attempts, worker_id FROM rpa_jobs WHERE id = $1"+db.ForUpdate(s.DB.Dialect()), id).
			Scan(&status, &attempts, &maxAttempts, &owner)
		if errors.Is(err, db.ErrNoRows) {
			return ErrJobNotFound
		}
		if err != nil {
			return err
		}
		if Status(status) != StatusRunning {
			return fmt.Errorf("%w: %s -> failed", ErrIllegalTransition, status)
		}
		if owner != workerID {
			return fmt.Errorf("%w: %s holds the lease, not %s", ErrLeaseLost, owner, workerID)
		}

		now := s.now()
		kind := f.Kind
		if kind == "" {
			kind = KindUnexpected
		}
		if f.Interrupted {
			next = StatusFailedRetryable
			_, err = q.Exec(ctx, `
        UPDATE rpa_jobs
        SET status = $2, last_error = $3, error_kind = $4, not_before = $5, updated_at = $5, worker_id = ''
        WHERE id = $1 AND status = 'RUNNING' AND worker_id = $6
      `, id, string(next), f.Message, string(kind), now, workerID)
			return err
		}

		attempts++
		if f.Retryable && attempts < maxAttempts {
			next = StatusFailedRetryable
			notBefore := now.Add(s.Backoff.Delay(attempts))
			_, err = q.Exec(ctx, `
        UPDATE rpa_jobs
        SET status = $2, attempts = $3, last_error = $4, error_kind = $5, not_before = $6, updated_at = $7, worker_id = ''
        WHERE id = $1 AND status = 'RUNNING' AND worker_id = $8
      `, id, string(next), attempts, f.Message, string(kind), notBefore, now, workerID)
			return err
		}

		next = StatusFailedPermanent
		message := f.Message
		if f.Retryable {
			message = fmt.Sprintf("%s (giving up after %d attempts)", f.Message, attempts)
		}
		_, err = q.Exec(ctx, `
      UPDATE rpa_jobs
      SET status = $2, attempts = $3, last_error = $4, error_kind = $5, finished_at = $6, updated_at = $6
      WHERE id = $1 AND status = 'RUNNING' AND worker_id = $7
    `, id, string(next), attempts, message, string(kind), now, workerID)
		return err
	})
	if err != nil {
		return "", err
	}
	return next, nil
}

func (s *Store) Get(ctx context.Context, id string) (Job, error) {
	if !validID(id) {
		return Job{}, ErrJobNotFound
	}
	job, err := scanJob(s.DB.QueryRow(ctx, "SELECT "+jobColumns+" FROM rpa_jobs WHERE id = $1", id))
	if errors.Is(err, db.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	return job, err
}

func buildFilter(filter Filter) (string, []any) {
	var clauses []string
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Platform != "" {
		args = append(args, filter.Platform)
		clauses = append(clauses, fmt.Sprintf("platform = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, string(filter.Action))
		clauses = append(clauses, fmt.Sprintf("action = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) ([]Job, error) {
	where, args := buildFilter(filter)
	query := "SELECT " + jobColumns + " FROM rpa_jobs" + where +
		fmt.Sprintf(" ORDER BY submitted_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context, filter Filter) (int, error) {
	where, args := buildFilter(filter)
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM rpa_jobs"+where, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// Cancel withdraws a job that no worker holds.
func (s *Store) Cancel(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrJobNotFound
	}
	now := s.now()
	n, err := s.DB.Exec(ctx, `
    UPDATE rpa_jobs
    SET status = 'CANCELLED', finished_at = $2, updated_at = $2
    WHERE id = $1 AND status IN ('QUEUED', 'FAILED_RETRYABLE')
  `, id, now)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.transitionError(ctx, s.DB, id, StatusCancelled)
	}
	return nil
}

// PromoteDue re-queues retryable jobs whose backoff has elapsed.
func (s *Store) PromoteDue(ctx context.Context) (int, error) {
	now := s.now()
	n, err := s.DB.Exec(ctx, `
    UPDATE rpa_jobs
    SET status = 'QUEUED', updated_at = $1
    WHERE status = 'FAILED_RETRYABLE' AND not_before <= $1
  `, now)
	return int(n), err
}

// ReapStale fails RUNNING jobs whose lease started before now-olderThan, as a
// retryable WorkerTimeout. It covers workers that died mid-job.
func (s *Store) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	rows, err := s.DB.Query(ctx, "SELECT id, worker_id FROM rpa_jobs WHERE status = 'RUNNING' AND started_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	type lease struct{ id, workerID string }
	var leases []lease
	for rows.Next() {
		var l lease
		if err := rows.Scan(&l.id, &l.workerID); err != nil {
			rows.Close()
			return 0, err
		}
		leases = append(leases, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	reaped := 0
	for _, l := range leases {
		// Failing as the recorded owner fences it: its late Complete or Fail
		// no longer matches worker_id.
		_, err := s.Fail(ctx, l.id, l.workerID, Failure{Kind: KindWorkerTimeout, Message: "worker lease expired", Retryable: true})
		if errors.Is(err, ErrIllegalTransition) || errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrLeaseLost) {
			continue
		}
		if err != nil {
			return reaped, err
		}
		reaped++
	}
	return reaped, nil
}

// leaseError explains why a conditional update by workerID matched nothing.
func (s *Store) leaseError(ctx context.Context, q db.Querier, id, workerID string, to Status) error {
	var status, owner string
	err := q.QueryRow(ctx, "SELECT status, worker_id FROM rpa_jobs WHERE id = $1", id).Scan(&status, &owner)
	if errors.Is(err, db.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return err
	}
	if Status(status) == StatusRunning && owner != workerID {
		return fmt.Errorf("%w: %s holds the lease, not %s", ErrLeaseLost, owner, workerID)
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, status, to)
}

func (s *Store) transitionError(ctx context.Context, q db.Querier, id string, to Status) error {
	var status string
	err := q.QueryRow(ctx, "SELECT status FROM rpa_jobs WHERE id = $1", id).Scan(&status)
	if errors.Is(err, db.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, status, to)
}
