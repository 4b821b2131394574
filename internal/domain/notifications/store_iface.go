package notifications

import "context"

type StoreAPI interface {
	Create(ctx context.Context, n Notice) (Notice, error)
	List(ctx context.Context, unreadOnly bool, limit, offset int) ([]Notice, error)
	Count(ctx context.Context, unreadOnly bool) (int, error)
	MarkRead(ctx context.Context, id string) error
}
