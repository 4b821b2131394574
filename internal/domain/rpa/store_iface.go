package rpa

import (
	"context"
	"time"
)

type StoreAPI interface {
	Submit(ctx context.Context, nj NewJob) (Job, bool, error)
	Claim(ctx context.Context, workerID string, platforms []string) (*Job, error)
	Complete(ctx context.Context, id, workerID string, res Result) error
	Fail(ctx context.Context, id, workerID string, f Failure) (Status, error)
	Get(ctx context.Context, id string) (Job, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]Job, error)
	Count(ctx context.Context, filter Filter) (int, error)
	Cancel(ctx context.Context, id string) error
	PromoteDue(ctx context.Context) (int, error)
	ReapStale(ctx context.Context, olderThan time.Duration) (int, error)
}
