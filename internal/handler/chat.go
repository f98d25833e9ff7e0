package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/convo/internal/realtime"
	"github.com/convo/internal/service"
)

type ChatHandler struct{ base }

func NewChatHandler(eng *service.Engine, fx *realtime.Dispatcher) *ChatHandler {
	return &ChatHandler{base{eng: eng, fx: fx}}
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	chats, err := h.eng.ListChats(r.Context(), actor(r))
	h.respond(w, r, http.StatusOK, chats, realtime.Effects{}, err)
}

// Create возвращает 201 для нового чата и 200, если чат с этой парой уже был.
func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateChatInput
	if !decode(w, r, &in) {
		return
	}
	res, fx, err := h.eng.CreateChat(r.Context(), actor(r), in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	h.respond(w, r, status, res.Chat, fx, nil)
}

func (h *ChatHandler) Show(w http.ResponseWriter, r *http.Request) {
	detail, fx, err := h.eng.ShowChat(r.Context(), actor(r), chi.URLParam(r, "id"), page(r))
	h.respond(w, r, http.StatusOK, detail, fx, err)
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	fx, err := h.eng.DeleteChat(r.Context(), actor(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusNoContent, nil, fx, err)
}

func (h *ChatHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	n, fx, err := h.eng.MarkChatRead(r.Context(), actor(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, readResponse{Count: n}, fx, err)
}

type readResponse struct {
	Count int64 `json:"count"`
}
