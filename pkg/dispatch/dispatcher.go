package dispatch

import "context"

// Dispatcher runs the tenant's business logic for one update. Implementations
// are invoked from queue workers, one update at a time per worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, upd *Update) error
}

type DispatcherFunc func(ctx context.Context, upd *Update) error

func (f DispatcherFunc) Dispatch(ctx context.Context, upd *Update) error {
	return f(ctx, upd)
}

// Client is the outbound handle a registered tenant holds against the
// messaging platform. One client exists per registry entry.
type Client interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SetWebhook(ctx context.Context, url, secretToken string) error
	DeleteWebhook(ctx context.Context) error
}
