package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"montero/internal/platform/db"
)

type Store struct {
	DB  db.DB
	now func() time.Time
}

func NewStore(conn db.DB) *Store {
	return &Store{DB: conn, now: time.Now}
}

func (s *Store) Create(ctx context.Context, n Notice) (Notice, error) {
	n.ID = uuid.NewString()
	n.CreatedAt = s.now().UTC()
	n.ReadAt = nil
	_, err := s.DB.Exec(ctx, `
    INSERT INTO operator_notices (id, kind, job_id, platform, title, body, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
  `, n.ID, n.Kind, n.JobID, n.Platform, n.Title, n.Body, n.CreatedAt)
	if err != nil {
		return Notice{}, err
	}
	return n, nil
}

func unreadClause(unreadOnly bool) string {
	if unreadOnly {
		return " WHERE read_at IS NULL"
	}
	return ""
}

func (s *Store) List(ctx context.Context, unreadOnly bool, limit, offset int) ([]Notice, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, kind, job_id, platform, title, body, created_at, read_at
    FROM operator_notices`+unreadClause(unreadOnly)+`
    ORDER BY created_at DESC, id DESC
    LIMIT $1 OFFSET $2
  `, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notice
	for rows.Next() {
		var n Notice
		if err := rows.Scan(&n.ID, &n.Kind, &n.JobID, &n.Platform, &n.Title, &n.Body, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context, unreadOnly bool) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM operator_notices"+unreadClause(unreadOnly)).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) MarkRead(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNoticeNotFound
	}
	n, err := s.DB.Exec(ctx, `
    UPDATE operator_notices SET read_at = $2
    WHERE id = $1 AND read_at IS NULL
  `, id, s.now().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var count int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM operator_notices WHERE id = $1", id).Scan(&count); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if count == 0 {
		return ErrNoticeNotFound
	}
	return nil
}
