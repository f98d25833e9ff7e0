package model

import "time"

// Contact — запись в записной книжке owner; имя может отличаться от профиля.
type Contact struct {
	UserID          string    `json:"user_id"`
	ContactedUserID string    `json:"contacted_user_id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ContactView struct {
	Contact
	Phone     string `json:"phone"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Block — пользователь UserID заблокировал BlockedUserID.
type Block struct {
	UserID        string    `json:"user_id"`
	BlockedUserID string    `json:"blocked_user_id"`
	BlockedAt     time.Time `json:"blocked_at"`
}

type BlockedUser struct {
	UserPublic
	BlockedAt time.Time `json:"blocked_at"`
}

type SearchResult struct {
	Chats  []ChatSummary `json:"chats"`
	Groups []Group       `json:"groups"`
}
