package ws

import "github.com/convo/internal/model"

type FrameType string

const (
	// От клиента.
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FramePing        FrameType = "ping"

	// От сервера.
	FrameEvent        FrameType = "event"
	FrameSubscribed   FrameType = "subscribed"
	FrameUnsubscribed FrameType = "unsubscribed"
	FramePong         FrameType = "pong"
	FrameError        FrameType = "error"
)

// События presence-канала группы, рассылаются хабом, а не ядром.
const (
	EventPresenceJoined = "presence.joined"
	EventPresenceLeft   = "presence.left"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type    FrameType `json:"type"`
	Channel string    `json:"channel,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
type OutgoingMessage struct {
	Type    FrameType              `json:"type"`
	Channel string                 `json:"channel,omitempty"`
	Event   string                 `json:"event,omitempty"`
	Payload any                    `json:"payload,omitempty"`
	Members []model.PresenceMember `json:"members,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Code    string                 `json:"code,omitempty"`
}

// PresencePayload — участник, появившийся в presence-канале или покинувший его.
type PresencePayload struct {
	Member model.PresenceMember `json:"member"`
}
