package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"montero/internal/platform/db"
	"montero/internal/requestctx"
)

func newTestService(t *testing.T) (*Service, *Store) {
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
	store := NewStore(conn)
	return New(store), store
}

func TestNotifyListAndMarkRead(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	base := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	if err := svc.CredentialRejected(ctx, "job-1", "ARL-X", "usuario bloqueado"); err != nil {
		t.Fatalf("credential notice: %v", err)
	}
	if err := svc.JobFailedPermanent(ctx, "job-2", "EPS-Y", "documento no existe"); err != nil {
		t.Fatalf("failure notice: %v", err)
	}

	notices, err := svc.List(ctx, false, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(notices) != 2 || notices[0].Kind != KindJobFailedPermanent || notices[1].Kind != KindCredentialRejected {
		t.Fatalf("unexpected notices %+v", notices)
	}
	if notices[1].Platform != "ARL-X" || notices[1].Title != "Credenciales rechazadas por ARL-X" {
		t.Fatalf("unexpected credential notice %+v", notices[1])
	}

	if err := svc.MarkRead(ctx, notices[1].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := svc.MarkRead(ctx, notices[1].ID); err != nil {
		t.Fatalf("mark read twice: %v", err)
	}
	unread, _ := svc.Count(ctx, true)
	all, _ := svc.Count(ctx, false)
	if unread != 1 || all != 2 {
		t.Fatalf("unexpected counts unread=%d all=%d", unread, all)
	}
	unreadList, _ := svc.List(ctx, true, 10, 0)
	if len(unreadList) != 1 || unreadList[0].ReadAt != nil {
		t.Fatalf("unexpected unread list %+v", unreadList)
	}
}

func TestMarkReadUnknown(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	for _, id := range []string{"bad", "6f1c3f8e-2f55-4d4c-9a43-1b0f3b8b1d11"} {
		if err := svc.MarkRead(ctx, id); !errors.Is(err, ErrNoticeNotFound) {
			t.Fatalf("%s: expected ErrNoticeNotFound, got %v", id, err)
		}
	}
}

func TestLogContextCarriesJobIDOnce(t *testing.T) {
	scoped := requestctx.WithJobID(context.Background(), "job-worker")

	cases := []struct {
		name  string
		ctx   context.Context
		jobID string
		want  string
	}{
		{"worker scoped context wins", scoped, "job-notice", "job-worker"},
		{"unscoped context takes notice job", context.Background(), "job-notice", "job-notice"},
		{"no job anywhere", context.Background(), "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := requestctx.GetJobID(logContext(tc.ctx, tc.jobID))
			if got != tc.want {
				t.Fatalf("job id: got %q want %q", got, tc.want)
			}
		})
	}
}
