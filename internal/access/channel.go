package access

import (
	"strings"

	"github.com/convo/internal/model"
)

type ChannelKind string

const (
	ChannelUser          ChannelKind = "user"
	ChannelChat          ChannelKind = "chat"
	ChannelGroupPrivate  ChannelKind = "group.private"
	ChannelGroupPublic   ChannelKind = "group.public"
	ChannelGroupPresence ChannelKind = "group.presence"
)

// Channel — разобранное имя realtime-канала: "chat.{id}", "group.private.{id}" и т.д.
type Channel struct {
	Kind ChannelKind
	ID   string
}

func (c Channel) String() string {
	return string(c.Kind) + "." + c.ID
}

// ParseChannel разбирает имя канала; ok=false для неизвестного формата.
func ParseChannel(name string) (Channel, bool) {
	for _, k := range []ChannelKind{ChannelGroupPrivate, ChannelGroupPublic, ChannelGroupPresence, ChannelUser, ChannelChat} {
		p := string(k) + "."
		if strings.HasPrefix(name, p) {
			id := strings.TrimPrefix(name, p)
			if id == "" || strings.Contains(id, ".") {
				return Channel{}, false
			}
			return Channel{Kind: k, ID: id}, true
		}
	}
	return Channel{}, false
}

// ChannelFacts — то, что вызывающая сторона знает о целевом контейнере канала.
type ChannelFacts struct {
	Chat       *model.Chat
	Group      *model.Group
	Membership *model.GroupMember
}

// Subscribe решает, может ли actor подписаться на канал.
// Публичный канал группы доступен любому аутентифицированному пользователю.
func Subscribe(actor string, ch Channel, f ChannelFacts) bool {
	if actor == "" {
		return false
	}
	switch ch.Kind {
	case ChannelUser:
		return ch.ID == actor
	case ChannelChat:
		return f.Chat != nil && f.Chat.ID == ch.ID && Chat(actor, f.Chat, ActionView)
	case ChannelGroupPrivate, ChannelGroupPresence:
		return f.Group != nil && f.Group.ID == ch.ID && Group(actor, f.Group, f.Membership, ActionView)
	case ChannelGroupPublic:
		return f.Group != nil && f.Group.ID == ch.ID
	}
	return false
}
