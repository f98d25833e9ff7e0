package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convo/internal/model"
)

type fakeStore struct {
	mu      sync.Mutex
	subs    map[string][]Subscription
	removed []string
	err     error
}

func newFakeStore() *fakeStore { return &fakeStore{subs: map[string][]Subscription{}} }

func (s *fakeStore) SaveSubscription(_ context.Context, userID string, sub Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[userID] = append(s.subs[userID], sub)
	return nil
}

func (s *fakeStore) Subscriptions(_ context.Context, userID string) ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]Subscription(nil), s.subs[userID]...), nil
}

func (s *fakeStore) RemoveSubscription(_ context.Context, userID, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, endpoint)
	kept := s.subs[userID][:0]
	for _, sub := range s.subs[userID] {
		if sub.Endpoint != endpoint {
			kept = append(kept, sub)
		}
	}
	s.subs[userID] = kept
	return nil
}

func sub(endpoint string) Subscription {
	var s Subscription
	s.Endpoint = endpoint
	s.Keys.P256dh = "p256"
	s.Keys.Auth = "auth"
	return s
}

func respond(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}
}

var testKeys = &VAPIDKeys{PublicKey: "pub", PrivateKey: "priv"}

func TestSenderRemovesGoneSubscriptions(t *testing.T) {
	store := newFakeStore()
	for _, e := range []string{"https://push/ok", "https://push/gone", "https://push/missing", "https://push/err", "https://push/500"} {
		require.NoError(t, store.SaveSubscription(context.Background(), "bob", sub(e)))
	}
	s := NewSender(store, testKeys)
	var payloads [][]byte
	s.send = func(_ context.Context, payload []byte, ws *webpush.Subscription, opts *webpush.Options) (*http.Response, error) {
		assert.Equal(t, "pub", opts.VAPIDPublicKey)
		payloads = append(payloads, payload)
		switch ws.Endpoint {
		case "https://push/gone":
			return respond(http.StatusGone), nil
		case "https://push/missing":
			return respond(http.StatusNotFound), nil
		case "https://push/err":
			return nil, errors.New("dial failed")
		case "https://push/500":
			return respond(http.StatusInternalServerError), nil
		}
		return respond(http.StatusCreated), nil
	}

	n, err := s.SendToUser(context.Background(), NotifyRequest{UserID: "bob", Title: "ann", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.ElementsMatch(t, []string{"https://push/gone", "https://push/missing"}, store.removed)

	var body map[string]any
	require.NoError(t, json.Unmarshal(payloads[0], &body))
	assert.Equal(t, "ann", body["title"])
	assert.Equal(t, "hi", body["body"])
}

func TestSenderDisabledWithoutKeys(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.SaveSubscription(context.Background(), "bob", sub("https://push/ok")))
	s := NewSender(store, nil)
	s.send = func(context.Context, []byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
		t.Fatal("send must not be called without VAPID keys")
		return nil, nil
	}
	assert.False(t, s.Enabled())
	n, err := s.SendToUser(context.Background(), NotifyRequest{UserID: "bob"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSenderStoreError(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("redis down")
	_, err := NewSender(store, testKeys).SendToUser(context.Background(), NotifyRequest{UserID: "bob"})
	require.Error(t, err)
}

func TestNotifyRequestFor(t *testing.T) {
	req := NotifyRequestFor(model.NewMessagePayload{
		RecipientID: "bob",
		Message:     "New message from ann",
		Data: model.NewMessageData{
			ID:        "m1",
			Container: model.ContainerRef{Kind: model.ContainerGroup, ID: "g1"},
			Content:   "hello",
			Sender:    "ann",
			SentAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	})
	assert.Equal(t, "bob", req.UserID)
	assert.Equal(t, "ann", req.Title)
	assert.Equal(t, "New message from ann", req.Body)
	assert.Equal(t, "group", req.Data["container_type"])
	assert.Equal(t, "g1", req.Data["container_id"])
	assert.Equal(t, "2026-03-01T12:00:00Z", req.Data["sent_at"])
}

func newTestServer(t *testing.T, store *fakeStore, publicKey string) *httptest.Server {
	t.Helper()
	s := NewServer(store, NewSender(store, nil), publicKey)
	r := chi.NewRouter()
	r.Get("/api/vapid-public", s.HandleVAPIDPublic)
	s.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientAgainstServer(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store, "pub-key")
	c := NewClient(srv.URL+"/", "s3cret")
	ctx := context.Background()

	require.True(t, c.Enabled())
	require.NoError(t, c.Subscribe(ctx, "bob", sub("https://push/1")))
	subs, err := store.Subscriptions(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, subs, 1)

	require.NoError(t, c.Notify(ctx, model.NewMessagePayload{RecipientID: "bob"}))
	require.NoError(t, c.Unsubscribe(ctx, "bob", "https://push/1"))
	assert.Equal(t, []string{"https://push/1"}, store.removed)

	err = c.Subscribe(ctx, "bob", Subscription{Endpoint: "https://push/no-keys"})
	require.Error(t, err, "invalid subscription is rejected with 400")
}

func TestClientSendsInternalSecret(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Internal-Secret")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL, "s3cret").Notify(context.Background(), model.NewMessagePayload{RecipientID: "bob"}))
	assert.Equal(t, "s3cret", got)
}

func TestDisabledClientIsNoop(t *testing.T) {
	c := NewClient("", "")
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Subscribe(context.Background(), "bob", sub("https://push/1")))
	assert.NoError(t, c.Notify(context.Background(), model.NewMessagePayload{RecipientID: "bob"}))
}

func TestVAPIDPublic(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), "pub-key")
	resp, err := http.Get(srv.URL + "/api/vapid-public")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pub-key", string(body))

	empty := newTestServer(t, newFakeStore(), "")
	resp2, err := http.Get(empty.URL + "/api/vapid-public")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}

func TestResolveVAPIDKeysPrefersEnv(t *testing.T) {
	t.Setenv("VAPID_PUBLIC_KEY", "env-pub")
	t.Setenv("VAPID_PRIVATE_KEY", "env-priv")
	keys, err := ResolveVAPIDKeys(filepath.Join(t.TempDir(), "vapid.json"))
	require.NoError(t, err)
	assert.Equal(t, &VAPIDKeys{PublicKey: "env-pub", PrivateKey: "env-priv"}, keys)
}

func TestEnsureVAPIDKeysPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "vapid.json")
	first, err := EnsureVAPIDKeys(path)
	require.NoError(t, err)
	require.NotEmpty(t, first.PublicKey)
	require.NotEmpty(t, first.PrivateKey)

	second, err := EnsureVAPIDKeys(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
