package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/convo/internal/apperr"
	"github.com/convo/internal/logger"
	"github.com/convo/internal/model"
	"github.com/convo/internal/realtime"
	"github.com/convo/internal/storage"
)

type AddContactInput struct {
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// UpdateContactInput — nil означает "не менять".
type UpdateContactInput struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

func (e *Engine) contactView(ctx context.Context, c *model.Contact) (*model.ContactView, error) {
	u, err := e.user(ctx, c.ContactedUserID)
	if err != nil {
		return nil, err
	}
	return &model.ContactView{Contact: *c, Phone: u.Phone, Username: u.Username, AvatarURL: u.AvatarURL}, nil
}

func (e *Engine) contact(ctx context.Context, actor, contactedID string) (*model.Contact, error) {
	c, err := e.st.Contacts.Get(ctx, actor, contactedID)
	if err != nil {
		return nil, fail("service.contact", notFound(err, apperr.ErrContactNotFound))
	}
	return c, nil
}

func (e *Engine) ListContacts(ctx context.Context, actor string) ([]model.ContactView, error) {
	defer logger.DeferLogDuration("service.ListContacts", time.Now())()
	list, err := e.st.Contacts.List(ctx, actor)
	if err != nil {
		return nil, fail("service.ListContacts", err)
	}
	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ContactedUserID)
	}
	users, err := e.st.Users.GetMany(ctx, ids)
	if err != nil {
		return nil, fail("service.ListContacts", err)
	}
	out := make([]model.ContactView, 0, len(list))
	for _, c := range list {
		u, ok := users[c.ContactedUserID]
		if !ok {
			continue
		}
		out = append(out, model.ContactView{Contact: c, Phone: u.Phone, Username: u.Username, AvatarURL: u.AvatarURL})
	}
	return out, nil
}

func (e *Engine) ShowContact(ctx context.Context, actor, contactedID string) (*model.ContactView, error) {
	c, err := e.contact(ctx, actor, contactedID)
	if err != nil {
		return nil, err
	}
	return e.contactView(ctx, c)
}

// AddContact находит пользователя по телефону и добавляет в контакты actor.
// Пустые имена берутся из профиля.
func (e *Engine) AddContact(ctx context.Context, actor string, in AddContactInput) (*model.ContactView, realtime.Effects, error) {
	defer logger.DeferLogDuration("service.AddContact", time.Now())()
	var fx realtime.Effects
	in.Phone = strings.TrimSpace(in.Phone)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	v := fields{}
	if v.required("phone", in.Phone) {
		v.between("phone", in.Phone, minPhoneLength, maxPhoneLength)
	}
	v.max("first_name", in.FirstName, maxNameLength)
	v.max("last_name", in.LastName, maxNameLength)
	if err := v.err(); err != nil {
		return nil, fx, err
	}

	u, err := e.st.Users.GetByPhone(ctx, in.Phone)
	if err != nil {
		return nil, fx, fail("service.AddContact", notFound(err, apperr.ErrUserNotFound))
	}
	if u.ID == actor {
		return nil, fx, apperr.Field("phone", "You cannot add yourself as a contact.")
	}
	if _, err := e.st.Contacts.Get(ctx, actor, u.ID); err == nil {
		return nil, fx, apperr.ErrContactExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fx, fail("service.AddContact", err)
	}

	now := e.now()
	c := &model.Contact{
		UserID:          actor,
		ContactedUserID: u.ID,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if c.FirstName == "" {
		c.FirstName = u.FirstName
	}
	if c.LastName == "" {
		c.LastName = u.LastName
	}
	if err := e.st.Contacts.Create(ctx, c); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, fx, apperr.ErrContactExists
		}
		return nil, fx, fail("service.AddContact", err)
	}
	fx.Publish(realtime.UserChannel(actor), realtime.EventContactCreated, realtime.ContactPayload{Contact: *c}, actor, false)
	return &model.ContactView{Contact: *c, Phone: u.Phone, Username: u.Username, AvatarURL: u.AvatarURL}, fx, nil
}

// UpdateContact меняет только переданные и отличающиеся поля.
func (e *Engine) UpdateContact(ctx context.Context, actor, contactedID string, in UpdateContactInput) (*model.ContactView, realtime.Effects, error) {
	defer logger.DeferLogDuration("service.UpdateContact", time.Now())()
	var fx realtime.Effects
	c, err := e.contact(ctx, actor, contactedID)
	if err != nil {
		return nil, fx, err
	}
	changed := false
	v := fields{}
	if in.FirstName != nil {
		name := strings.TrimSpace(*in.FirstName)
		if v.required("first_name", name) {
			v.max("first_name", name, maxNameLength)
		}
		if name != c.FirstName {
			c.FirstName, changed = name, true
		}
	}
	if in.LastName != nil {
		name := strings.TrimSpace(*in.LastName)
		v.max("last_name", name, maxNameLength)
		if name != c.LastName {
			c.LastName, changed = name, true
		}
	}
	if err := v.err(); err != nil {
		return nil, fx, err
	}
	if changed {
		c.UpdatedAt = e.now()
		if err := e.st.Contacts.Update(ctx, c); err != nil {
			return nil, fx, fail("service.UpdateContact", notFound(err, apperr.ErrContactNotFound))
		}
		fx.Publish(realtime.UserChannel(actor), realtime.EventContactUpdated, realtime.ContactPayload{Contact: *c}, actor, false)
	}
	view, err := e.contactView(ctx, c)
	if err != nil {
		return nil, fx, err
	}
	return view, fx, nil
}

func (e *Engine) DeleteContact(ctx context.Context, actor, contactedID string) (realtime.Effects, error) {
	defer logger.DeferLogDuration("service.DeleteContact", time.Now())()
	var fx realtime.Effects
	c, err := e.contact(ctx, actor, contactedID)
	if err != nil {
		return fx, err
	}
	if err := e.st.Contacts.Delete(ctx, actor, contactedID); err != nil {
		return fx, fail("service.DeleteContact", notFound(err, apperr.ErrContactNotFound))
	}
	fx.Publish(realtime.UserChannel(actor), realtime.EventContactDeleted, realtime.ContactPayload{Contact: *c}, actor, false)
	return fx, nil
}
