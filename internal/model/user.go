package model

import "time"

type User struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Username  string    `json:"username,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FullName — отображаемое имя: "Имя Фамилия" без лишних пробелов.
func (u *User) FullName() string {
	switch {
	case u.LastName == "":
		return u.FirstName
	case u.FirstName == "":
		return u.LastName
	default:
		return u.FirstName + " " + u.LastName
	}
}

type UserPublic struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:        u.ID,
		FullName:  u.FullName(),
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
	}
}

// PresenceMember — данные участника presence-канала группы.
type PresenceMember struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
}
