package push

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/convo/internal/logger"
)

// Store — хранилище подписок push-сервиса (Redis).
type Store interface {
	SubscriptionStore
	SaveSubscription(ctx context.Context, userID string, sub Subscription) error
}

// Server — HTTP-интерфейс push-сервиса: подписки от API и прямые уведомления.
type Server struct {
	store     Store
	sender    *Sender
	publicKey string
}

func NewServer(store Store, sender *Sender, publicKey string) *Server {
	return &Server{store: store, sender: sender, publicKey: publicKey}
}

// Routes регистрирует /api/*; доступ ограничивает вызывающий (middleware.InternalOnly).
func (s *Server) Routes(r chi.Router) {
	r.Post("/api/subscribe", s.handleSubscribe)
	r.Delete("/api/subscribe", s.handleUnsubscribe)
	r.Post("/api/notify", s.handleNotify)
}

// HandleVAPIDPublic отдаёт публичный ключ для PushManager.subscribe в браузере.
func (s *Server) HandleVAPIDPublic(w http.ResponseWriter, _ *http.Request) {
	if s.publicKey == "" {
		http.Error(w, "push not configured", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(s.publicKey))
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || !req.Subscription.Valid() {
		http.Error(w, "user_id and subscription (endpoint, keys.p256dh, keys.auth) required", http.StatusBadRequest)
		return
	}
	if err := s.store.SaveSubscription(r.Context(), req.UserID, req.Subscription); err != nil {
		logger.Errorf("subscribe: %v", err)
		http.Error(w, "failed to save subscription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || req.Endpoint == "" {
		http.Error(w, "user_id and endpoint required", http.StatusBadRequest)
		return
	}
	if err := s.store.RemoveSubscription(r.Context(), req.UserID, req.Endpoint); err != nil {
		logger.Errorf("unsubscribe: %v", err)
		http.Error(w, "failed to remove subscription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if _, err := s.sender.SendToUser(ctx, req); err != nil {
		logger.Errorf("notify: %v", err)
		http.Error(w, "failed to get subscriptions", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
