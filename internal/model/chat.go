package model

import "time"

// Chat — личная переписка двух пользователей. Участники фиксируются при создании.
type Chat struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (c *Chat) Ref() ContainerRef { return ChatRef(c.ID) }

func (c *Chat) IsParticipant(userID string) bool {
	return userID != "" && (c.SenderID == userID || c.ReceiverID == userID)
}

// OtherParticipant возвращает собеседника userID; пустая строка, если userID не участник.
func (c *Chat) OtherParticipant(userID string) string {
	switch userID {
	case c.SenderID:
		return c.ReceiverID
	case c.ReceiverID:
		return c.SenderID
	default:
		return ""
	}
}

// PairKey — ключ неупорядоченной пары, одинаковый для (a,b) и (b,a).
func PairKey(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

type ChatSummary struct {
	Chat          Chat       `json:"chat"`
	Counterpart   UserPublic `json:"counterpart"`
	LatestMessage *Message   `json:"latest_message,omitempty"`
	UnreadCount   int        `json:"unread_count"`
}

type ChatDetail struct {
	Chat     Chat       `json:"chat"`
	Sender   UserPublic `json:"sender"`
	Receiver UserPublic `json:"receiver"`
	Messages []Message  `json:"messages"`
}
