// Package service — ядро: правила жизненного цикла чатов, групп, сообщений и отметок прочтения.
// Каждая мутация возвращает результат и список эффектов (realtime.Effects), которые
// вызывающая сторона выполняет после коммита. Текущий пользователь всегда передаётся явно (actor).
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/convo/internal/apperr"
	"github.com/convo/internal/logger"
	"github.com/convo/internal/model"
	"github.com/convo/internal/storage"
)

type Engine struct {
	st    Stores
	reads *ReadTracker
	now   func() time.Time
	newID func() string
}

type Option func(*Engine)

// WithClock подменяет источник времени (тесты).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

func New(st Stores, opts ...Option) *Engine {
	e := &Engine{
		st:    st,
		reads: NewReadTracker(st.Chats, st.Messages),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ReadTracker возвращает подсистему отметок прочтения.
func (e *Engine) ReadTracker() *ReadTracker { return e.reads }

// fail оставляет ошибки ядра как есть, остальное логирует и превращает во внутреннюю ошибку.
func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	logger.Errorf("%s: %v", op, err)
	return apperr.Internal(err)
}

// notFound заменяет storage.ErrNotFound на ошибку ядра nf.
func notFound(err error, nf *apperr.Error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return nf
	}
	return err
}

// inTx выполняет fn в транзакции. Сбой хранилища внутри транзакции откатывает все записи
// и возвращается клиенту общим текстом; детали только в логе.
func (e *Engine) inTx(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := e.st.Tx.WithTx(ctx, fn); err != nil {
		return fail(op, err)
	}
	return nil
}

func (e *Engine) user(ctx context.Context, id string) (*model.User, error) {
	u, err := e.st.Users.GetByID(ctx, id)
	if err != nil {
		return nil, fail("service.user", notFound(err, apperr.ErrUserNotFound))
	}
	return u, nil
}

func (e *Engine) chat(ctx context.Context, id string) (*model.Chat, error) {
	c, err := e.st.Chats.GetByID(ctx, id)
	if err != nil {
		return nil, fail("service.chat", notFound(err, apperr.ErrChatNotFound))
	}
	return c, nil
}

func (e *Engine) group(ctx context.Context, id string) (*model.Group, error) {
	g, err := e.st.Groups.GetByID(ctx, id)
	if err != nil {
		return nil, fail("service.group", notFound(err, apperr.ErrGroupNotFound))
	}
	return g, nil
}

func (e *Engine) message(ctx context.Context, id string) (*model.Message, error) {
	m, err := e.st.Messages.GetByID(ctx, id)
	if err != nil {
		return nil, fail("service.message", notFound(err, apperr.ErrMessageNotFound))
	}
	return m, nil
}

// membership возвращает запись членства или nil, если пользователь не в группе.
func (e *Engine) membership(ctx context.Context, groupID, userID string) (*model.GroupMember, error) {
	m, err := e.st.Groups.GetMember(ctx, groupID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fail("service.membership", err)
	}
	return m, nil
}

// IsMember сообщает, состоит ли пользователь в группе.
func (e *Engine) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	m, err := e.membership(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

// publicUsers загружает профили для подстановки в ответы; отсутствующие пропускаются.
func (e *Engine) publicUsers(ctx context.Context, ids []string) (map[string]model.UserPublic, error) {
	out := make(map[string]model.UserPublic, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	users, err := e.st.Users.GetMany(ctx, ids)
	if err != nil {
		return nil, fail("service.publicUsers", err)
	}
	for id, u := range users {
		out[id] = u.ToPublic()
	}
	return out, nil
}

// withSenders подставляет профили авторов в сообщения.
func (e *Engine) withSenders(ctx context.Context, msgs []model.Message) ([]model.Message, error) {
	seen := make(map[string]struct{}, 8)
	ids := make([]string, 0, 8)
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			ids = append(ids, m.SenderID)
		}
	}
	users, err := e.publicUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if u, ok := users[msgs[i].SenderID]; ok {
			msgs[i].Sender = &u
		}
	}
	return msgs, nil
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func normalizePage(f model.MessageFilter) model.MessageFilter {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
