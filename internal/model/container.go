package model

import "fmt"

// ContainerKind — тег контейнера сообщения.
type ContainerKind string

const (
	ContainerChat  ContainerKind = "chat"
	ContainerGroup ContainerKind = "group"
)

func (k ContainerKind) Valid() bool {
	return k == ContainerChat || k == ContainerGroup
}

// ContainerRef — ссылка на чат или группу, к которой принадлежит сообщение.
type ContainerRef struct {
	Kind ContainerKind `json:"type"`
	ID   string        `json:"id"`
}

func ChatRef(id string) ContainerRef  { return ContainerRef{Kind: ContainerChat, ID: id} }
func GroupRef(id string) ContainerRef { return ContainerRef{Kind: ContainerGroup, ID: id} }

func (r ContainerRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}
