package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/convo/internal/apperr"
	"github.com/convo/internal/logger"
	"github.com/convo/internal/model"
)

// Claims — содержимое access-токена провайдера идентификации.
// sub — идентификатор пользователя; профильные поля синхронизируются в users.
type Claims struct {
	Phone     string `json:"phone,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) User() model.User {
	return model.User{
		ID:        c.Subject,
		Phone:     c.Phone,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Username:  c.Username,
	}
}

// UserProvisioner создаёт или обновляет пользователя по данным токена.
type UserProvisioner interface {
	ProvisionUser(ctx context.Context, u model.User) (*model.User, error)
}

// IssueToken подписывает HS256-токен (dev-режим и тесты).
func IssueToken(secret []byte, u model.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Phone:     u.Phone,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken проверяет подпись и срок действия.
func ParseToken(secret []byte, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// bearerToken: заголовок Authorization или ?token= (браузер не умеет заголовки в WebSocket).
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func maskToken(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:8] + "***"
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}

// BearerAuth проверяет JWT и кладёт user_id в контекст. prov может быть nil.
func BearerAuth(secret []byte, prov UserProvisioner) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "Unauthenticated.")
				return
			}
			claims, err := ParseToken(secret, raw)
			if err != nil {
				logger.Infof("auth: reject token=%s: %v", maskToken(raw), err)
				writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "Unauthenticated.")
				return
			}
			if prov != nil {
				if _, err := prov.ProvisionUser(r.Context(), claims.User()); err != nil {
					e := apperr.As(err)
					writeJSONError(w, e.Kind.HTTPStatus(), e.Code, e.Message)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.Subject)))
		})
	}
}
