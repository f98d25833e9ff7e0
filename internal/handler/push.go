package handler

import (
	"context"
	"net/http"

	"github.com/convo/internal/push"
)

// PushSubscriber — адаптер к push-сервису (push.Client).
type PushSubscriber interface {
	Subscribe(ctx context.Context, userID string, sub push.Subscription) error
	Unsubscribe(ctx context.Context, userID, endpoint string) error
}

// PushHandler проксирует подписку на пуш-уведомления в push-сервис.
type PushHandler struct {
	client PushSubscriber
}

func NewPushHandler(client PushSubscriber) *PushHandler {
	return &PushHandler{client: client}
}

// SubscribeRequest — тело от фронта (subscription из PushManager.getSubscription()).
type SubscribeRequest struct {
	Subscription push.Subscription `json:"subscription"`
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if !decode(w, r, &req) {
		return
	}
	if !req.Subscription.Valid() {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "subscription.endpoint and subscription.keys required",
			Code:   "validation_failed",
			Fields: map[string]string{"subscription": "The subscription field is invalid."},
		})
		return
	}
	if err := h.client.Subscribe(r.Context(), actor(r), req.Subscription); err != nil {
		writeError(w, http.StatusBadGateway, "failed to subscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Endpoint == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "The endpoint field is required.",
			Code:   "validation_failed",
			Fields: map[string]string{"endpoint": "The endpoint field is required."},
		})
		return
	}
	if err := h.client.Unsubscribe(r.Context(), actor(r), req.Endpoint); err != nil {
		writeError(w, http.StatusBadGateway, "failed to unsubscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
