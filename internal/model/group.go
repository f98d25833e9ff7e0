package model

import "time"

type Group struct {
	ID          string    `json:"id"`
	Slug        string    `json:"group_id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Picture     string    `json:"picture,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (g *Group) Ref() ContainerRef { return GroupRef(g.ID) }

func (g *Group) IsOwner(userID string) bool {
	return userID != "" && g.OwnerID == userID
}

// GroupMember — запись членства (group, user) с флагом администратора.
type GroupMember struct {
	GroupID  string    `json:"group_id"`
	UserID   string    `json:"user_id"`
	IsAdmin  bool      `json:"is_admin"`
	JoinedAt time.Time `json:"joined_at"`
}

type GroupMemberView struct {
	UserPublic
	IsAdmin  bool      `json:"is_admin"`
	IsOwner  bool      `json:"is_owner"`
	JoinedAt time.Time `json:"joined_at"`
}

type GroupSummary struct {
	Group         Group    `json:"group"`
	LatestMessage *Message `json:"latest_message,omitempty"`
	UnreadCount   int      `json:"unread_count"`
}

type GroupDetail struct {
	Group    Group             `json:"group"`
	Members  []GroupMemberView `json:"members"`
	Messages []Message         `json:"messages"`
}
