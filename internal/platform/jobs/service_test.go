package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"montero/internal/platform/db"
	"montero/internal/platform/metrics"
)

type fakeQueue struct {
	promoted  int
	reaped    int
	staleSeen time.Duration
	err       error
}

func (f *fakeQueue) PromoteDue(context.Context) (int, error) { return f.promoted, f.err }

func (f *fakeQueue) ReapStale(_ context.Context, olderThan time.Duration) (int, error) {
	f.staleSeen = olderThan
	return f.reaped, nil
}

func newTestService(t *testing.T, q JobQueue) *Service {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(conn.Close)
	if err := db.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(conn, q, Config{Interval: time.Minute, StaleAfter: 10 * time.Minute}, metrics.New())
}

func TestTickRecordsRuns(t *testing.T) {
	q := &fakeQueue{promoted: 2, reaped: 1}
	s := newTestService(t, q)

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if q.staleSeen != 10*time.Minute {
		t.Fatalf("reaper got cutoff %s", q.staleSeen)
	}

	runs, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	byType := map[string]Run{}
	for _, r := range runs {
		byType[r.JobType] = r
	}
	promote := byType[JobPromoteDue]
	if promote.Status != "completed" || promote.CompletedAt == nil || !strings.Contains(string(promote.Details), `"promoted":2`) {
		t.Fatalf("unexpected promote run %+v", promote)
	}
	if !strings.Contains(string(byType[JobReapStale].Details), `"reaped":1`) {
		t.Fatalf("unexpected reap run %+v", byType[JobReapStale])
	}
}

func TestTickReportsFailures(t *testing.T) {
	q := &fakeQueue{err: errors.New("db down")}
	s := newTestService(t, q)

	if err := s.Tick(context.Background()); err == nil || err.Error() != "db down" {
		t.Fatalf("expected db down, got %v", err)
	}
	runs, _ := s.Recent(context.Background(), 10)
	failed := 0
	for _, r := range runs {
		if r.Status == "failed" {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("expected one failed run, got %+v", runs)
	}
}

func TestTickPrunesOldRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, &fakeQueue{})
	if s.Cfg.RunRetention != 7*24*time.Hour {
		t.Fatalf("default retention %s", s.Cfg.RunRetention)
	}

	old := time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return old }
	if err := s.Tick(ctx); err != nil {
		t.Fatalf("first tick: %v", err)
	}

	s.now = func() time.Time { return old.Add(8 * 24 * time.Hour) }
	if err := s.Tick(ctx); err != nil {
		t.Fatalf("second tick: %v", err)
	}

	runs, err := s.Recent(ctx, 50)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected only the latest tick's 3 runs, got %d", len(runs))
	}
	for _, r := range runs {
		if r.StartedAt.Before(old.Add(24 * time.Hour)) {
			t.Fatalf("old run survived: %+v", r)
		}
		if r.JobType == JobPruneRuns && !strings.Contains(string(r.Details), `"pruned":3`) {
			t.Fatalf("unexpected prune details %s", r.Details)
		}
	}
}

func TestStartDisabledWithoutInterval(t *testing.T) {
	s := &Service{Cfg: Config{}}
	s.Start(context.Background())
}
