package params

import (
	"context"
	"encoding/json"
	"fmt"

	"montero/internal/platform/db"
)

type Store struct {
	DB db.DB
}

func NewStore(conn db.DB) *Store {
	return &Store{DB: conn}
}

// Seed inserts bundles whose year is not stored yet. Existing years are never
// overwritten. It returns the number of rows inserted.
func (s *Store) Seed(ctx context.Context, bundles ...FiscalParameters) (int, error) {
	inserted := 0
	for _, b := range bundles {
		if err := b.Validate(); err != nil {
			return inserted, err
		}
		payload, err := json.Marshal(b)
		if err != nil {
			return inserted, err
		}
		n, err := s.DB.Exec(ctx, `
      INSERT INTO fiscal_parameters (year, params_json)
      VALUES ($1, $2)
      ON CONFLICT (year) DO NOTHING
    `, b.Year, string(payload))
		if err != nil {
			return inserted, fmt.Errorf("seed fiscal year %d: %w", b.Year, err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

func (s *Store) List(ctx context.Context) ([]FiscalParameters, error) {
	rows, err := s.DB.Query(ctx, "SELECT year, params_json FROM fiscal_parameters ORDER BY year")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FiscalParameters
	for rows.Next() {
		var year int
		var raw string
		if err := rows.Scan(&year, &raw); err != nil {
			return nil, err
		}
		var p FiscalParameters
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode fiscal year %d: %w", year, err)
		}
		if p.Year != year {
			return nil, fmt.Errorf("%w: row %d holds year %d", ErrInvalidParameters, year, p.Year)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Load builds the registry from the stored bundles.
func Load(ctx context.Context, conn db.DB, defaultYear int) (*Registry, error) {
	bundles, err := NewStore(conn).List(ctx)
	if err != nil {
		return nil, err
	}
	return NewRegistry(defaultYear, bundles...)
}
