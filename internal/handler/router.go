package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/convo/internal/realtime"
	"github.com/convo/internal/service"
	"github.com/convo/internal/ws"
)

// Handlers — все обработчики API. Push и WS могут быть nil (маршруты не регистрируются).
type Handlers struct {
	Chat    *ChatHandler
	Group   *GroupHandler
	Message *MessageHandler
	User    *UserHandler
	Push    *PushHandler
	WS      *WSHandler
}

func New(eng *service.Engine, fx *realtime.Dispatcher, hub *ws.Hub, pushClient PushSubscriber) *Handlers {
	h := &Handlers{
		Chat:    NewChatHandler(eng, fx),
		Group:   NewGroupHandler(eng, fx),
		Message: NewMessageHandler(eng, fx),
		User:    NewUserHandler(eng, fx),
	}
	if pushClient != nil {
		h.Push = NewPushHandler(pushClient)
	}
	if hub != nil {
		h.WS = NewWSHandler(hub)
	}
	return h
}

// Mount регистрирует маршруты, требующие аутентификации; BearerAuth подключает вызывающий.
func (h *Handlers) Mount(r chi.Router) {
	r.Get("/api/users/me", h.User.Me)
	r.Get("/api/users/blocked", h.User.Blocked)
	r.Post("/api/users/{id}/block", h.User.Block)
	r.Delete("/api/users/{id}/block", h.User.Unblock)

	r.Get("/api/chats", h.Chat.List)
	r.Post("/api/chats", h.Chat.Create)
	r.Get("/api/chats/{id}", h.Chat.Show)
	r.Delete("/api/chats/{id}", h.Chat.Delete)
	r.Patch("/api/chats/{id}/mark-as-read", h.Chat.MarkAsRead)

	r.Get("/api/groups", h.Group.List)
	r.Post("/api/groups", h.Group.Create)
	r.Get("/api/groups/{id}", h.Group.Show)
	r.Patch("/api/groups/{id}", h.Group.Update)
	r.Delete("/api/groups/{id}", h.Group.Delete)
	r.Post("/api/groups/{id}/join", h.Group.Join)
	r.Delete("/api/groups/{id}/leave", h.Group.Leave)
	r.Patch("/api/groups/{id}/transfer-ownership/{userId}", h.Group.TransferOwnership)
	r.Patch("/api/groups/{id}/mark-as-read", h.Group.MarkAsRead)
	r.Get("/api/groups/{id}/members", h.Group.Members)
	r.Post("/api/groups/{id}/members", h.Group.AddMember)
	r.Patch("/api/groups/{id}/members/{userId}/promote-to-admin", h.Group.PromoteToAdmin)
	r.Delete("/api/groups/{id}/members/{userId}", h.Group.RemoveMember)

	r.Post("/api/messages", h.Message.Create)
	r.Patch("/api/messages/{id}", h.Message.Update)
	r.Delete("/api/messages/{id}", h.Message.Delete)
	r.Get("/api/messages/{id}/readers", h.Message.Readers)

	r.Get("/api/contacts", h.User.Contacts)
	r.Post("/api/contacts", h.User.AddContact)
	r.Get("/api/contacts/{userId}", h.User.ShowContact)
	r.Patch("/api/contacts/{userId}", h.User.UpdateContact)
	r.Delete("/api/contacts/{userId}", h.User.DeleteContact)

	r.Get("/api/search", h.User.Search)

	if h.Push != nil {
		r.Post("/api/push/subscribe", h.Push.Subscribe)
		r.Delete("/api/push/subscribe", h.Push.Unsubscribe)
	}
	if h.WS != nil {
		r.Get("/ws", h.WS.ServeWS)
	}
}
