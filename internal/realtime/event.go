// Package realtime описывает исходящие события: имена каналов и событий,
// эффекты, которые ядро возвращает вместе с результатом мутации, и их доставку после коммита.
package realtime

import (
	"github.com/convo/internal/access"
	"github.com/convo/internal/model"
)

// Имена событий стабильны: на них подписаны клиенты.
const (
	EventChatCreated          = "chat.created"
	EventChatDeleted          = "chat.deleted"
	EventUserEnteredChat      = "user.entered.chat"
	EventChatMessagesRead     = "chat.messages.read"
	EventMessageCreated       = "message.created"
	EventMessageUpdated       = "message.updated"
	EventMessageDeleted       = "message.deleted"
	EventGroupCreated         = "group.created"
	EventGroupUpdated         = "group.updated"
	EventGroupDeleted         = "group.deleted"
	EventUserJoinedGroup      = "user.joined.group"
	EventUserLeftGroup        = "user.left.group"
	EventOwnershipTransferred = "group.ownership.transferred"
	EventGroupMessagesRead    = "group.messages.read"
	EventUserAddedToGroup     = "user.added.to.group"
	EventUserRemovedFromGroup = "user.removed.from.group"
	EventUserPromotedAdmin    = "user.promoted.to.admin"
	EventUserBlocked          = "user.blocked"
	EventUserUnblocked        = "user.unblocked"
	EventContactCreated       = "contact.created"
	EventContactUpdated       = "contact.updated"
	EventContactDeleted       = "contact.deleted"

	// EventSubscriptionRevoked уходит в личный канал пользователя: хаб снимает
	// его соединения с перечисленных каналов, затем доставляет событие клиенту.
	EventSubscriptionRevoked = "subscription.revoked"

	// NotificationNewMessage — тип уведомления о новом сообщении.
	NotificationNewMessage = "new.message"
	NewMessageText         = "You have a new message"
)

func UserChannel(id string) string          { return access.Channel{Kind: access.ChannelUser, ID: id}.String() }
func ChatChannel(id string) string          { return access.Channel{Kind: access.ChannelChat, ID: id}.String() }
func GroupPrivateChannel(id string) string  { return access.Channel{Kind: access.ChannelGroupPrivate, ID: id}.String() }
func GroupPublicChannel(id string) string   { return access.Channel{Kind: access.ChannelGroupPublic, ID: id}.String() }
func GroupPresenceChannel(id string) string { return access.Channel{Kind: access.ChannelGroupPresence, ID: id}.String() }

// ContainerChannel — канал, в который уходят события сообщений контейнера.
func ContainerChannel(ref model.ContainerRef) string {
	if ref.Kind == model.ContainerGroup {
		return GroupPrivateChannel(ref.ID)
	}
	return ChatChannel(ref.ID)
}

// Broadcast — одно событие для pub/sub транспорта.
// ExcludeActor=true: не доставлять в соединения пользователя ActorID.
type Broadcast struct {
	Channel      string `json:"channel"`
	Event        string `json:"event"`
	Payload      any    `json:"payload"`
	ActorID      string `json:"actor_id,omitempty"`
	ExcludeActor bool   `json:"exclude_actor,omitempty"`
}

// Effects — побочные эффекты мутации, выполняются только после коммита.
type Effects struct {
	Broadcasts    []Broadcast
	Notifications []model.NewMessagePayload
}

func (e *Effects) Publish(channel, event string, payload any, actorID string, excludeActor bool) {
	e.Broadcasts = append(e.Broadcasts, Broadcast{
		Channel:      channel,
		Event:        event,
		Payload:      payload,
		ActorID:      actorID,
		ExcludeActor: excludeActor,
	})
}

// Revoke отзывает подписки пользователя на каналы группы, в которой он больше не состоит.
// Идёт через тот же транспорт, что и события, поэтому срабатывает на всех экземплярах.
func (e *Effects) Revoke(userID string, channels ...string) {
	if len(channels) == 0 {
		return
	}
	e.Publish(UserChannel(userID), EventSubscriptionRevoked,
		RevokedPayload{UserID: userID, Channels: channels}, userID, false)
}

// GroupMemberChannels — каналы группы, доступные только её участникам.
func GroupMemberChannels(groupID string) []string {
	return []string{GroupPrivateChannel(groupID), GroupPresenceChannel(groupID)}
}

func (e *Effects) Notify(p model.NewMessagePayload) {
	e.Notifications = append(e.Notifications, p)
}

func (e Effects) Empty() bool {
	return len(e.Broadcasts) == 0 && len(e.Notifications) == 0
}
