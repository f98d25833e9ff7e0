package service

import (
	"context"
	"strings"
	"time"

	"github.com/convo/internal/access"
	"github.com/convo/internal/apperr"
	"github.com/convo/internal/logger"
	"github.com/convo/internal/model"
	"github.com/convo/internal/realtime"
)

type CreateMessageInput struct {
	Container model.ContainerRef `json:"container"`
	Content   string             `json:"content"`
}

// scope — контейнер сообщения после проверки доступа. Заполнено ровно одно из полей.
type scope struct {
	chat  *model.Chat
	group *model.Group
}

// container разрешает ссылку на контейнер и проверяет право actor на действие.
// Единственная точка ветвления по виду контейнера для операций с сообщениями.
func (e *Engine) container(ctx context.Context, actor string, ref model.ContainerRef, action access.Action) (scope, error) {
	switch ref.Kind {
	case model.ContainerChat:
		c, err := e.chat(ctx, ref.ID)
		if err != nil {
			return scope{}, err
		}
		if err := access.Require(access.Chat(actor, c, action)); err != nil {
			return scope{}, err
		}
		return scope{chat: c}, nil
	case model.ContainerGroup:
		g, err := e.group(ctx, ref.ID)
		if err != nil {
			return scope{}, err
		}
		m, err := e.membership(ctx, g.ID, actor)
		if err != nil {
			return scope{}, err
		}
		if err := access.Require(access.Group(actor, g, m, action)); err != nil {
			return scope{}, err
		}
		return scope{group: g}, nil
	}
	return scope{}, apperr.Field("container_type", "The selected container type is invalid.")
}

// recipients — кому уходит уведомление о новом сообщении: все, кроме автора.
func (e *Engine) recipients(ctx context.Context, s scope, sender string) ([]string, error) {
	if s.chat != nil {
		return []string{s.chat.OtherParticipant(sender)}, nil
	}
	ids, err := e.st.Groups.MemberIDs(ctx, s.group.ID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != sender {
			out = append(out, id)
		}
	}
	return out, nil
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	v := fields{}
	if v.required("content", content) {
		v.between("content", content, 1, model.MaxMessageLength)
	}
	return content, v.err()
}

// CreateMessage сохраняет сообщение со статусом sent и возвращает эффекты:
// message.created в канал контейнера и по одному уведомлению каждому получателю.
func (e *Engine) CreateMessage(ctx context.Context, actor string, in CreateMessageInput) (*model.Message, realtime.Effects, error) {
	defer logger.DeferLogDuration("service.CreateMessage", time.Now())()
	var fx realtime.Effects

	v := fields{}
	if !in.Container.Kind.Valid() {
		v.add("container_type", "The selected container type is invalid.")
	}
	v.required("container_id", in.Container.ID)
	content, cerr := validateContent(in.Content)
	if cerr != nil {
		for k, m := range apperr.As(cerr).Fields {
			v.add(k, m)
		}
	}
	if err := v.err(); err != nil {
		return nil, fx, err
	}

	s, err := e.container(ctx, actor, in.Container, access.ActionSendMessage)
	if err != nil {
		return nil, fx, err
	}
	if s.chat != nil {
		if err := e.blockBetween(ctx, actor, s.chat.OtherParticipant(actor)); err != nil {
			return nil, fx, err
		}
	}
	sender, err := e.user(ctx, actor)
	if err != nil {
		return nil, fx, err
	}

	now := e.now()
	m := &model.Message{
		ID:        e.newID(),
		Container: in.Container,
		SenderID:  actor,
		Content:   content,
		Status:    model.MessageStatusSent,
		SentAt:    now,
		UpdatedAt: now,
	}
	var to []string
	err = e.inTx(ctx, "service.CreateMessage", func(ctx context.Context) error {
		if err := e.st.Messages.Create(ctx, m); err != nil {
			return err
		}
		var err error
		to, err = e.recipients(ctx, s, actor)
		return err
	})
	if err != nil {
		return nil, fx, err
	}
	pub := sender.ToPublic()
	m.Sender = &pub

	fx.Publish(realtime.ContainerChannel(m.Container), realtime.EventMessageCreated, realtime.MessagePayload{Message: *m}, actor, false)
	for _, uid := range to {
		fx.Notify(model.NewMessagePayload{
			RecipientID: uid,
			Message:     realtime.NewMessageText,
			Data: model.NewMessageData{
				ID:        m.ID,
				Container: m.Container,
				Content:   m.Content,
				Sender:    sender.FullName(),
				SentAt:    m.SentAt,
			},
		})
	}
	return m, fx, nil
}

// UpdateMessage — только автор и только для sent/read; статус не меняется.
func (e *Engine) UpdateMessage(ctx context.Context, actor, messageID, content string) (*model.Message, realtime.Effects, error) {
	defer logger.DeferLogDuration("service.UpdateMessage", time.Now())()
	var fx realtime.Effects
	m, err := e.message(ctx, messageID)
	if err != nil {
		return nil, fx, err
	}
	if err := access.Require(access.Message(actor, m, access.ActionUpdate)); err != nil {
		return nil, fx, err
	}
	if !m.Status.Editable() {
		return nil, fx, apperr.ErrNotEditable
	}
	content, err = validateContent(content)
	if err != nil {
		return nil, fx, err
	}
	updated, err := e.st.Messages.UpdateContent(ctx, m.ID, content)
	if err != nil {
		return nil, fx, fail("service.UpdateMessage", notFound(err, apperr.ErrMessageNotFound))
	}
	fx.Publish(realtime.ContainerChannel(updated.Container), realtime.EventMessageUpdated, realtime.MessagePayload{Message: *updated}, actor, false)
	return updated, fx, nil
}

// DeleteMessage — только автор; отметки прочтения удаляются вместе с сообщением.
func (e *Engine) DeleteMessage(ctx context.Context, actor, messageID string) (realtime.Effects, error) {
	defer logger.DeferLogDuration("service.DeleteMessage", time.Now())()
	var fx realtime.Effects
	m, err := e.message(ctx, messageID)
	if err != nil {
		return fx, err
	}
	if err := access.Require(access.Message(actor, m, access.ActionDelete)); err != nil {
		return fx, err
	}
	if err := e.st.Messages.Delete(ctx, m.ID); err != nil {
		return fx, fail("service.DeleteMessage", notFound(err, apperr.ErrMessageNotFound))
	}
	fx.Publish(realtime.ContainerChannel(m.Container), realtime.EventMessageDeleted,
		realtime.MessageDeletedPayload{ID: m.ID, Container: m.Container}, actor, false)
	return fx, nil
}

// MessageReaders — кто прочитал сообщение. Для чата это собеседник, если статус read.
func (e *Engine) MessageReaders(ctx context.Context, actor, messageID string) ([]model.ReadReceipt, error) {
	m, err := e.message(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := access.Require(access.Message(actor, m, access.ActionViewReaders)); err != nil {
		return nil, err
	}
	if m.Container.Kind == model.ContainerChat {
		if m.Status != model.MessageStatusRead {
			return []model.ReadReceipt{}, nil
		}
		c, err := e.chat(ctx, m.Container.ID)
		if err != nil {
			return nil, err
		}
		return []model.ReadReceipt{{MessageID: m.ID, MemberID: c.OtherParticipant(m.SenderID), ReadAt: m.UpdatedAt}}, nil
	}
	receipts, err := e.st.Messages.Readers(ctx, m.ID)
	if err != nil {
		return nil, fail("service.MessageReaders", err)
	}
	return receipts, nil
}
