package service

import (
	"context"
	"errors"
	"time"

	"github.com/convo/internal/access"
	"github.com/convo/internal/apperr"
	"github.com/convo/internal/logger"
	"github.com/convo/internal/model"
	"github.com/convo/internal/realtime"
	"github.com/convo/internal/storage"
)

type CreateChatInput struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
}

type CreateChatResult struct {
	Chat    *model.Chat
	Created bool
}

// CreateChat создаёт личный чат или возвращает существующий для той же пары (в любом порядке).
func (e *Engine) CreateChat(ctx context.Context, actor string, in CreateChatInput) (*CreateChatResult, realtime.Effects, error) {
	defer logger.DeferLogDuration("service.CreateChat", time.Now())()
	var fx realtime.Effects

	v := fields{}
	v.required("sender_id", in.SenderID)
	v.required("receiver_id", in.ReceiverID)
	if in.SenderID != "" && in.SenderID == in.ReceiverID {
		v.add("receiver_id", "The receiver id field and sender id must be different.")
	}
	if err := v.err(); err != nil {
		return nil, fx, err
	}
	if actor != in.SenderID && actor != in.ReceiverID {
		return nil, fx, apperr.ErrForbidden
	}
	other := in.ReceiverID
	if actor == in.ReceiverID {
		other = in.SenderID
	}
	if _, err := e.user(ctx, other); err != nil {
		return nil, fx, err
	}
	if err := e.blockBetween(ctx, actor, other); err != nil {
		switch {
		case errors.Is(err, apperr.ErrBlockedByYou):
			return nil, fx, apperr.ErrAlreadyBlocked.WithMessage(apperr.ErrBlockedByYou.Message)
		case errors.Is(err, apperr.ErrBlockedYou):
			return nil, fx, apperr.ErrAlreadyBlocked.WithMessage(apperr.ErrBlockedYou.Message)
		}
		return nil, fx, err
	}

	existing, err := e.st.Chats.FindByPair(ctx, actor, other)
	if err == nil {
		return &CreateChatResult{Chat: existing}, fx, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fx, fail("service.CreateChat", err)
	}

	now := e.now()
	c := &model.Chat{
		ID:         e.newID(),
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.st.Chats.Create(ctx, c); err != nil {
		if !errors.Is(err, storage.ErrConflict) {
			return nil, fx, fail("service.CreateChat", err)
		}
		// Параллельный запрос успел создать чат для этой пары.
		existing, err := e.st.Chats.FindByPair(ctx, actor, other)
		if err != nil {
			return nil, fx, fail("service.CreateChat", err)
		}
		return &CreateChatResult{Chat: existing}, fx, nil
	}
	fx.Publish(realtime.ChatChannel(c.ID), realtime.EventChatCreated, realtime.ChatPayload{Chat: *c}, actor, false)
	return &CreateChatResult{Chat: c, Created: true}, fx, nil
}

// ListChats — чаты пользователя с собеседником, последним сообщением и числом непрочитанных.
func (e *Engine) ListChats(ctx context.Context, actor string) ([]model.ChatSummary, error) {
	defer logger.DeferLogDuration("service.ListChats", time.Now())()
	chats, err := e.st.Chats.ListForUser(ctx, actor)
	if err != nil {
		return nil, fail("service.ListChats", err)
	}
	return e.chatSummaries(ctx, actor, chats, true)
}

func (e *Engine) chatSummaries(ctx context.Context, actor string, chats []model.Chat, withMessages bool) ([]model.ChatSummary, error) {
	ids := make([]string, 0, len(chats))
	for i := range chats {
		ids = append(ids, chats[i].OtherParticipant(actor))
	}
	users, err := e.publicUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]model.ChatSummary, 0, len(chats))
	for i := range chats {
		c := chats[i]
		s := model.ChatSummary{Chat: c, Counterpart: users[c.OtherParticipant(actor)]}
		if withMessages {
			latest, err := e.st.Messages.Latest(ctx, c.Ref())
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return nil, fail("service.chatSummaries", err)
			}
			s.LatestMessage = latest
			if s.UnreadCount, err = e.reads.UnreadCount(ctx, c.Ref(), actor); err != nil {
				return nil, fail("service.chatSummaries", err)
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// ShowChat открывает чат: отмечает сообщения собеседника прочитанными и возвращает историю
// без pending/failed сообщений. Собеседник получает user.entered.chat.
func (e *Engine) ShowChat(ctx context.Context, actor, chatID string, page model.MessageFilter) (*model.ChatDetail, realtime.Effects, error) {
	defer logger.DeferLogDuration("service.ShowChat", time.Now())()
	var fx realtime.Effects
	c, err := e.chat(ctx, chatID)
	if err != nil {
		return nil, fx, err
	}
	if err := access.Require(access.Chat(actor, c, access.ActionView)); err != nil {
		return nil, fx, err
	}
	if _, err := e.reads.MarkRead(ctx, c.Ref(), actor); err != nil {
		return nil, fx, fail("service.ShowChat", err)
	}
	page = normalizePage(page)
	page.VisibleOnly = true
	msgs, err := e.st.Messages.List(ctx, c.Ref(), page)
	if err != nil {
		return nil, fx, fail("service.ShowChat", err)
	}
	if msgs, err = e.withSenders(ctx, msgs); err != nil {
		return nil, fx, err
	}
	users, err := e.publicUsers(ctx, []string{c.SenderID, c.ReceiverID})
	if err != nil {
		return nil, fx, err
	}
	fx.Publish(realtime.ChatChannel(c.ID), realtime.EventUserEnteredChat,
		realtime.ChatRefPayload{ChatID: c.ID, UserID: actor}, actor, true)
	return &model.ChatDetail{
		Chat:     *c,
		Sender:   users[c.SenderID],
		Receiver: users[c.ReceiverID],
		Messages: msgs,
	}, fx, nil
}

// DeleteChat удаляет чат вместе с сообщениями и отметками прочтения.
func (e *Engine) DeleteChat(ctx context.Context, actor, chatID string) (realtime.Effects, error) {
	defer logger.DeferLogDuration("service.DeleteChat", time.Now())()
	var fx realtime.Effects
	c, err := e.chat(ctx, chatID)
	if err != nil {
		return fx, err
	}
	if err := access.Require(access.Chat(actor, c, access.ActionDelete)); err != nil {
		return fx, err
	}
	err = e.inTx(ctx, "service.DeleteChat", func(ctx context.Context) error {
		if err := e.st.Messages.DeleteByContainer(ctx, c.Ref()); err != nil {
			return err
		}
		return e.st.Chats.Delete(ctx, c.ID)
	})
	if err != nil {
		return fx, err
	}
	fx.Publish(realtime.ChatChannel(c.ID), realtime.EventChatDeleted,
		realtime.ChatRefPayload{ChatID: c.ID, UserID: actor}, actor, false)
	return fx, nil
}

// MarkChatRead отмечает прочитанными сообщения собеседника; возвращает число изменённых.
func (e *Engine) MarkChatRead(ctx context.Context, actor, chatID string) (int64, realtime.Effects, error) {
	defer logger.DeferLogDuration("service.MarkChatRead", time.Now())()
	var fx realtime.Effects
	c, err := e.chat(ctx, chatID)
	if err != nil {
		return 0, fx, err
	}
	if err := access.Require(access.Chat(actor, c, access.ActionMarkRead)); err != nil {
		return 0, fx, err
	}
	n, err := e.reads.MarkRead(ctx, c.Ref(), actor)
	if err != nil {
		return 0, fx, fail("service.MarkChatRead", err)
	}
	if n > 0 {
		fx.Publish(realtime.ChatChannel(c.ID), realtime.EventChatMessagesRead,
			realtime.ReadPayload{Container: c.Ref(), ReaderID: actor, Count: n}, actor, false)
	}
	return n, fx, nil
}
