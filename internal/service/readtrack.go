package service

import (
	"context"
	"fmt"

	"github.com/convo/internal/apperr"
	"github.com/convo/internal/model"
)

// readStrategy отмечает прочтение для одного вида контейнера.
type readStrategy interface {
	markRead(ctx context.Context, containerID, readerID string) (int64, error)
	unread(ctx context.Context, containerID, readerID string) (int, error)
}

// ReadTracker выбирает стратегию по тегу контейнера один раз на входе.
// Чат: статус сообщений собеседника переводится в read.
// Группа: для читателя создаются отметки о прочтении чужих сообщений.
// Повторный вызов ничего не меняет; свои сообщения читателя не затрагиваются.
type ReadTracker struct {
	strategies map[model.ContainerKind]readStrategy
}

func NewReadTracker(chats ChatStore, msgs MessageStore) *ReadTracker {
	return &ReadTracker{strategies: map[model.ContainerKind]readStrategy{
		model.ContainerChat:  chatReads{chats: chats, msgs: msgs},
		model.ContainerGroup: groupReads{msgs: msgs},
	}}
}

func (t *ReadTracker) strategy(kind model.ContainerKind) (readStrategy, error) {
	s, ok := t.strategies[kind]
	if !ok {
		return nil, apperr.Field("container_type", fmt.Sprintf("Unknown container type %q.", kind))
	}
	return s, nil
}

// MarkRead возвращает число изменённых записей (0 при повторном вызове).
func (t *ReadTracker) MarkRead(ctx context.Context, ref model.ContainerRef, readerID string) (int64, error) {
	s, err := t.strategy(ref.Kind)
	if err != nil {
		return 0, err
	}
	return s.markRead(ctx, ref.ID, readerID)
}

// UnreadCount — число непрочитанных readerID сообщений контейнера.
func (t *ReadTracker) UnreadCount(ctx context.Context, ref model.ContainerRef, readerID string) (int, error) {
	s, err := t.strategy(ref.Kind)
	if err != nil {
		return 0, err
	}
	return s.unread(ctx, ref.ID, readerID)
}

type chatReads struct {
	chats ChatStore
	msgs  MessageStore
}

func (s chatReads) markRead(ctx context.Context, chatID, readerID string) (int64, error) {
	c, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return 0, err
	}
	other := c.OtherParticipant(readerID)
	if other == "" {
		return 0, apperr.ErrForbidden
	}
	return s.msgs.MarkChatRead(ctx, chatID, other)
}

func (s chatReads) unread(ctx context.Context, chatID, readerID string) (int, error) {
	return s.msgs.UnreadCount(ctx, model.ChatRef(chatID), readerID)
}

type groupReads struct {
	msgs MessageStore
}

func (s groupReads) markRead(ctx context.Context, groupID, readerID string) (int64, error) {
	return s.msgs.MarkGroupRead(ctx, groupID, readerID)
}

func (s groupReads) unread(ctx context.Context, groupID, readerID string) (int, error) {
	return s.msgs.UnreadCount(ctx, model.GroupRef(groupID), readerID)
}
