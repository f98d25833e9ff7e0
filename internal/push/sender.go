package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/convo/internal/logger"
)

// SubscriptionStore — хранилище подписок пользователя (Redis: push:subs:{user}).
type SubscriptionStore interface {
	Subscriptions(ctx context.Context, userID string) ([]Subscription, error)
	RemoveSubscription(ctx context.Context, userID, endpoint string) error
}

type sendFunc func(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

// Sender рассылает Web Push по всем подпискам пользователя.
// Подписки, на которые сервис браузера ответил 404/410, удаляются.
type Sender struct {
	subs  SubscriptionStore
	vapid *webpush.Options
	send  sendFunc
}

// NewSender: keys nil — отправка отключена, подписки продолжают храниться.
func NewSender(subs SubscriptionStore, keys *VAPIDKeys) *Sender {
	s := &Sender{subs: subs, send: webpush.SendNotificationWithContext}
	if keys != nil && keys.PublicKey != "" && keys.PrivateKey != "" {
		s.vapid = &webpush.Options{
			Subscriber:      "convo-push",
			VAPIDPublicKey:  keys.PublicKey,
			VAPIDPrivateKey: keys.PrivateKey,
			TTL:             30,
		}
	}
	return s
}

func (s *Sender) Enabled() bool { return s.vapid != nil }

// SendToUser возвращает число успешно отправленных пушей.
func (s *Sender) SendToUser(ctx context.Context, req NotifyRequest) (int, error) {
	subs, err := s.subs.Subscriptions(ctx, req.UserID)
	if err != nil {
		return 0, fmt.Errorf("push subscriptions: %w", err)
	}
	if s.vapid == nil || len(subs) == 0 {
		return 0, nil
	}
	payload, err := json.Marshal(map[string]any{"title": req.Title, "body": req.Body, "data": req.Data})
	if err != nil {
		return 0, err
	}
	sent := 0
	for i := range subs {
		sub := &subs[i]
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}
		resp, err := s.send(ctx, payload, wpSub, s.vapid)
		if err != nil {
			logger.Errorf("push send %s: %v", sub.Endpoint[:min(50, len(sub.Endpoint))], err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
			if err := s.subs.RemoveSubscription(ctx, req.UserID, sub.Endpoint); err != nil {
				logger.Errorf("push remove stale subscription: %v", err)
			}
			continue
		}
		if resp.StatusCode >= 300 {
			logger.Errorf("push send: status %d", resp.StatusCode)
			continue
		}
		sent++
	}
	return sent, nil
}
