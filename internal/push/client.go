package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/convo/internal/model"
)

// Client вызывает микросервис пуш-уведомлений. Если URL пустой — методы no-op.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// NewClient создаёт клиент. baseURL пустой — пуши отключены.
// secret уходит в X-Internal-Secret, если push-сервис не в приватной сети.
func NewClient(baseURL, secret string) *Client {
	if baseURL == "" {
		return &Client{}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled — задан ли адрес push-сервиса.
func (c *Client) Enabled() bool { return c.baseURL != "" }

// SubscribeRequest — тело запроса подписки.
type SubscribeRequest struct {
	UserID       string       `json:"user_id"`
	Subscription Subscription `json:"subscription"`
}

// Subscription — подписка из браузера (PushManager.subscribe).
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (s Subscription) Valid() bool {
	return s.Endpoint != "" && s.Keys.P256dh != "" && s.Keys.Auth != ""
}

func (c *Client) post(ctx context.Context, method, path string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("X-Internal-Secret", c.secret)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("push %s %s: %d", method, path, resp.StatusCode)
	}
	return nil
}

// Subscribe сохраняет подписку для user_id на push-сервисе.
func (c *Client) Subscribe(ctx context.Context, userID string, sub Subscription) error {
	if c.baseURL == "" {
		return nil
	}
	return c.post(ctx, http.MethodPost, "/api/subscribe", SubscribeRequest{UserID: userID, Subscription: sub})
}

// Unsubscribe удаляет подписку по endpoint.
func (c *Client) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	if c.baseURL == "" {
		return nil
	}
	return c.post(ctx, http.MethodDelete, "/api/subscribe", map[string]string{"user_id": userID, "endpoint": endpoint})
}

// NotifyRequest — запрос на отправку уведомления.
type NotifyRequest struct {
	UserID string            `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// NotifyRequestFor собирает пуш о новом сообщении для получателя.
func NotifyRequestFor(p model.NewMessagePayload) NotifyRequest {
	return NotifyRequest{
		UserID: p.RecipientID,
		Title:  p.Data.Sender,
		Body:   p.Message,
		Data: map[string]string{
			"message_id":     p.Data.ID,
			"container_type": string(p.Data.Container.Kind),
			"container_id":   p.Data.Container.ID,
			"content":        p.Data.Content,
			"sent_at":        p.Data.SentAt.UTC().Format(time.RFC3339),
		},
	}
}

// Notify отправляет пуш получателю напрямую через push-сервис (без очереди).
func (c *Client) Notify(ctx context.Context, p model.NewMessagePayload) error {
	if c.baseURL == "" {
		return nil
	}
	return c.post(ctx, http.MethodPost, "/api/notify", NotifyRequestFor(p))
}
