package vault

import (
	"context"
	"errors"
	"time"

	"montero/internal/platform/db"
)

type Store struct {
	DB  db.DB
	now func() time.Time
}

func NewStore(conn db.DB) *Store {
	return &Store{DB: conn, now: time.Now}
}

func (s *Store) Upsert(ctx context.Context, rec record) error {
	now := s.now().UTC()
	_, err := s.DB.Exec(ctx, `
    INSERT INTO credentials (platform, username_ct, password_ct, url, notes, key_version, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
    ON CONFLICT (platform) DO UPDATE
      SET username_ct = EXCLUDED.username_ct,
          password_ct = EXCLUDED.password_ct,
          url = EXCLUDED.url,
          notes = EXCLUDED.notes,
          key_version = EXCLUDED.key_version,
          updated_at = EXCLUDED.updated_at
  `, rec.Platform, rec.UsernameCT, rec.PasswordCT, rec.URL, rec.Notes, rec.KeyVersion, now)
	return err
}

const recordColumns = "platform, username_ct, password_ct, url, notes, key_version, created_at, updated_at"

func (s *Store) Get(ctx context.Context, platform string) (record, error) {
	var rec record
	err := s.DB.QueryRow(ctx, "SELECT "+recordColumns+" FROM credentials WHERE platform = $1", platform).
		Scan(&rec.Platform, &rec.UsernameCT, &rec.PasswordCT, &rec.URL, &rec.Notes, &rec.KeyVersion, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, db.ErrNoRows) {
		return record{}, ErrCredentialNotFound
	}
	return rec, err
}

func (s *Store) List(ctx context.Context) ([]record, error) {
	rows, err := s.DB.Query(ctx, "SELECT "+recordColumns+" FROM credentials ORDER BY platform")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record
	for rows.Next() {
		var rec record
		if err := rows.Scan(&rec.Platform, &rec.UsernameCT, &rec.PasswordCT, &rec.URL, &rec.Notes, &rec.KeyVersion, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, platform string) (bool, error) {
	n, err := s.DB.Exec(ctx, "DELETE FROM credentials WHERE platform = $1", platform)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) UpdateCiphertexts(ctx context.Context, platform string, usernameCT, passwordCT []byte, keyVersion int) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE credentials
    SET username_ct = $2, password_ct = $3, key_version = $4, updated_at = $5
    WHERE platform = $1
  `, platform, usernameCT, passwordCT, keyVersion, s.now().UTC())
	return err
}
