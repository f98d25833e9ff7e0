package service

import (
	"context"
	"errors"
	"strings"

	"github.com/convo/internal/apperr"
	"github.com/convo/internal/model"
	"github.com/convo/internal/storage"
)

// ErrPhoneTaken — телефон из токена уже принадлежит другому пользователю.
var ErrPhoneTaken = &apperr.Error{Kind: apperr.KindConflict, Code: "phone_taken", Message: "The phone has already been taken."}

// ProvisionUser синхронизирует профиль пользователя с данными провайдера идентификации.
// Вызывается на каждом аутентифицированном запросе; created_at сохраняется.
func (e *Engine) ProvisionUser(ctx context.Context, u model.User) (*model.User, error) {
	u.ID = strings.TrimSpace(u.ID)
	u.Phone = strings.TrimSpace(u.Phone)
	f := fields{}
	f.required("id", u.ID)
	f.max("first_name", u.FirstName, 255)
	f.max("last_name", u.LastName, 255)
	if err := f.err(); err != nil {
		return nil, err
	}
	if cur, err := e.st.Users.GetByID(ctx, u.ID); err == nil {
		// Токен не несёт bio, а username и аватар приходят не всегда.
		u.Bio = cur.Bio
		if u.Username == "" {
			u.Username = cur.Username
		}
		if u.AvatarURL == "" {
			u.AvatarURL = cur.AvatarURL
		}
		if sameProfile(cur, &u) {
			return cur, nil
		}
		u.CreatedAt = cur.CreatedAt
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fail("provisionUser", err)
	}
	if err := e.st.Users.Upsert(ctx, &u); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrPhoneTaken
		}
		return nil, fail("provisionUser", err)
	}
	return &u, nil
}

func sameProfile(a, b *model.User) bool {
	return a.Phone == b.Phone && a.FirstName == b.FirstName && a.LastName == b.LastName &&
		a.Username == b.Username && a.AvatarURL == b.AvatarURL
}

// Me возвращает профиль текущего пользователя.
func (e *Engine) Me(ctx context.Context, actor string) (*model.User, error) {
	return e.user(ctx, actor)
}
