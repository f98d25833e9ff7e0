package model

import "time"

type MessageStatus string

const (
	MessageStatusPending MessageStatus = "pending"
	MessageStatusSent    MessageStatus = "sent"
	MessageStatusRead    MessageStatus = "read"
	MessageStatusFailed  MessageStatus = "failed"
)

func (s MessageStatus) Valid() bool {
	switch s {
	case MessageStatusPending, MessageStatusSent, MessageStatusRead, MessageStatusFailed:
		return true
	}
	return false
}

// Editable — редактировать можно только доставленные сообщения (sent или read).
func (s MessageStatus) Editable() bool {
	return s == MessageStatusSent || s == MessageStatusRead
}

// Visible — pending и failed не показываются в истории чата.
func (s MessageStatus) Visible() bool {
	return s.Editable()
}

const MaxMessageLength = 255

type Message struct {
	ID        string        `json:"id"`
	Container ContainerRef  `json:"container"`
	SenderID  string        `json:"sender_id"`
	Content   string        `json:"content"`
	Status    MessageStatus `json:"status"`
	IsEdited  bool          `json:"is_edited"`
	SentAt    time.Time     `json:"sent_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Sender    *UserPublic   `json:"sender,omitempty"`
}

// ReadReceipt — отметка о прочтении сообщения группы участником.
type ReadReceipt struct {
	MessageID string    `json:"message_id"`
	MemberID  string    `json:"member_id"`
	ReadAt    time.Time `json:"read_at"`
}

// MessageFilter — параметры выборки истории контейнера.
type MessageFilter struct {
	VisibleOnly bool
	Limit       int
	Offset      int
}

// NewMessagePayload — уведомление получателю о новом сообщении.
type NewMessagePayload struct {
	RecipientID string         `json:"recipient_id"`
	Message     string         `json:"message"`
	Data        NewMessageData `json:"data"`
}

type NewMessageData struct {
	ID        string       `json:"id"`
	Container ContainerRef `json:"container"`
	Content   string       `json:"content"`
	Sender    string       `json:"sender"`
	SentAt    time.Time    `json:"sent_at"`
}
