package notify

import (
	"context"
	"errors"

	"github.com/convo/internal/model"
	"github.com/convo/internal/realtime"
)

// Multi отправляет уведомление каждому notifier; ошибки собираются, но не прерывают остальных.
type Multi []realtime.Notifier

func (m Multi) Notify(ctx context.Context, p model.NewMessagePayload) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop — notifier-заглушка, когда доставка уведомлений не настроена.
type Nop struct{}

func (Nop) Notify(context.Context, model.NewMessagePayload) error { return nil }
