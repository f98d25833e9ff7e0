// Package access содержит чистые предикаты авторизации: кто может просматривать,
// изменять и модерировать чаты, группы и сообщения. Никаких обращений к хранилищу —
// все факты (членство, роль) передаются вызывающей стороной.
package access

import (
	"github.com/convo/internal/apperr"
	"github.com/convo/internal/model"
)

type Action string

const (
	ActionView              Action = "view"
	ActionUpdate            Action = "update"
	ActionDelete            Action = "delete"
	ActionMarkRead          Action = "mark_read"
	ActionSendMessage       Action = "send_message"
	ActionListMembers       Action = "list_members"
	ActionTransferOwnership Action = "transfer_ownership"
	ActionAddMember         Action = "add_member"
	ActionRemoveMember      Action = "remove_member"
	ActionPromote           Action = "promote"
	ActionViewReaders       Action = "view_readers"
)

// Chat: любое действие разрешено только участникам.
func Chat(actor string, c *model.Chat, action Action) bool {
	if c == nil {
		return false
	}
	switch action {
	case ActionView, ActionUpdate, ActionDelete, ActionMarkRead, ActionSendMessage:
		return c.IsParticipant(actor)
	}
	return false
}

// Group проверяет действие над группой. membership — запись членства actor или nil.
func Group(actor string, g *model.Group, membership *model.GroupMember, action Action) bool {
	if g == nil || actor == "" {
		return false
	}
	isMember := membership != nil && membership.UserID == actor && membership.GroupID == g.ID
	switch action {
	case ActionUpdate, ActionDelete, ActionTransferOwnership, ActionPromote:
		return g.IsOwner(actor)
	case ActionView, ActionMarkRead, ActionSendMessage, ActionListMembers:
		return isMember
	case ActionAddMember, ActionRemoveMember:
		return g.IsOwner(actor) || (isMember && membership.IsAdmin)
	}
	return false
}

// Message: изменять, удалять и смотреть прочитавших может только автор.
func Message(actor string, m *model.Message, action Action) bool {
	if m == nil || actor == "" {
		return false
	}
	switch action {
	case ActionUpdate, ActionDelete, ActionViewReaders:
		return m.SenderID == actor
	}
	return false
}

// Require превращает отказ в apperr.ErrForbidden.
func Require(allowed bool) error {
	if !allowed {
		return apperr.ErrForbidden
	}
	return nil
}
