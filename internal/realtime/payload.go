package realtime

import (
	"encoding/json"

	"github.com/convo/internal/model"
)

// Типизированные payload событий, чтобы не гонять map[string]any.

type ChatPayload struct {
	Chat model.Chat `json:"chat"`
}

type ChatRefPayload struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

type MessagePayload struct {
	Message model.Message `json:"message"`
}

type MessageDeletedPayload struct {
	ID        string             `json:"id"`
	Container model.ContainerRef `json:"container"`
}

type ReadPayload struct {
	Container model.ContainerRef `json:"container"`
	ReaderID  string             `json:"reader_id"`
	Count     int64              `json:"count"`
}

type GroupPayload struct {
	Group model.Group `json:"group"`
}

type GroupRefPayload struct {
	GroupID string `json:"group_id"`
}

type MemberPayload struct {
	GroupID string               `json:"group_id"`
	Member  model.PresenceMember `json:"member"`
	ActorID string               `json:"actor_id"`
	IsAdmin bool                 `json:"is_admin"`
}

type OwnershipPayload struct {
	GroupID         string `json:"group_id"`
	PreviousOwnerID string `json:"previous_owner_id"`
	OwnerID         string `json:"owner_id"`
}

type BlockPayload struct {
	UserID        string `json:"user_id"`
	BlockedUserID string `json:"blocked_user_id"`
}

type ContactPayload struct {
	Contact model.Contact `json:"contact"`
}

type RevokedPayload struct {
	UserID   string   `json:"user_id"`
	Channels []string `json:"channels"`
}

// DecodeRevoked достаёт RevokedPayload из события: локально это сама структура,
// после Redis-ретранслятора — сырой JSON.
func DecodeRevoked(payload any) (RevokedPayload, bool) {
	switch p := payload.(type) {
	case RevokedPayload:
		return p, true
	case *RevokedPayload:
		if p == nil {
			return RevokedPayload{}, false
		}
		return *p, true
	}
	raw, ok := payload.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(payload); err != nil {
			return RevokedPayload{}, false
		}
	}
	var out RevokedPayload
	if err := json.Unmarshal(raw, &out); err != nil || out.UserID == "" {
		return RevokedPayload{}, false
	}
	return out, true
}
