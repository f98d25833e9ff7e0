package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convo/internal/metrics"
	"github.com/convo/internal/model"
)

var secret = []byte("test-secret")

type fakeProvisioner struct {
	got []model.User
	err error
}

func (p *fakeProvisioner) ProvisionUser(_ context.Context, u model.User) (*model.User, error) {
	p.got = append(p.got, u)
	return &u, p.err
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(GetUserID(r.Context())))
}

func TestBearerAuth(t *testing.T) {
	valid, err := IssueToken(secret, model.User{ID: "u1", Phone: "+79000000001", FirstName: "Ann"}, time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken(secret, model.User{ID: "u1"}, -time.Minute)
	require.NoError(t, err)
	foreign, err := IssueToken([]byte("other"), model.User{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
		body   string
	}{
		{"header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) }, http.StatusOK, "u1"},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer "+valid) }, http.StatusOK, "u1"},
		{"query token", func(r *http.Request) { r.URL.RawQuery = "token=" + valid }, http.StatusOK, "u1"},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized, ""},
		{"expired", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) }, http.StatusUnauthorized, ""},
		{"wrong key", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+foreign) }, http.StatusUnauthorized, ""},
		{"basic scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prov := &fakeProvisioner{}
			h := BearerAuth(secret, prov)(http.HandlerFunc(echoUser))
			req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.body, rec.Body.String())
				require.Len(t, prov.got, 1)
				assert.Equal(t, "+79000000001", prov.got[0].Phone)
			} else {
				assert.Empty(t, prov.got)
				assert.JSONEq(t, `{"error":"Unauthenticated.","code":"unauthenticated"}`, rec.Body.String())
			}
		})
	}
}

func TestBearerAuthProvisionFailure(t *testing.T) {
	token, err := IssueToken(secret, model.User{ID: "u1"}, time.Hour)
	require.NoError(t, err)
	h := BearerAuth(secret, &fakeProvisioner{err: errors.New("db down")})(http.HandlerFunc(echoUser))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRecoverJSON(t *testing.T) {
	h := RecoverJSON(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"internal"`)
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(2, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("k"))
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
	assert.True(t, l.Allow("other"))

	now = now.Add(time.Minute + time.Second)
	assert.True(t, l.Allow("k"))

	now = now.Add(2 * time.Minute)
	l.Sweep()
	assert.Empty(t, l.times)
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimit(1, 0, time.Minute)(http.HandlerFunc(echoUser))
	do := func() int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-Ip", "10.0.0.9")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
}

func TestInternalOnly(t *testing.T) {
	h := InternalOnly("s3cret")(http.HandlerFunc(echoUser))
	tests := []struct {
		name   string
		remote string
		header map[string]string
		status int
	}{
		{"loopback", "127.0.0.1:5555", nil, http.StatusOK},
		{"private", "10.1.2.3:5555", nil, http.StatusOK},
		{"public", "8.8.8.8:5555", nil, http.StatusForbidden},
		{"public with secret", "8.8.8.8:5555", map[string]string{"X-Internal-Secret": "s3cret"}, http.StatusOK},
		{"forwarded public", "10.1.2.3:5555", map[string]string{"X-Forwarded-For": "8.8.8.8, 10.1.2.3"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/notify", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/api/chats/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	before := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/api/chats/{id}", "418"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/chats/c1", nil))
	after := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/api/chats/{id}", "418"))

	assert.Equal(t, before+1, after)
}
