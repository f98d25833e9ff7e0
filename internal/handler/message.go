package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/convo/internal/realtime"
	"github.com/convo/internal/service"
)

type MessageHandler struct{ base }

func NewMessageHandler(eng *service.Engine, fx *realtime.Dispatcher) *MessageHandler {
	return &MessageHandler{base{eng: eng, fx: fx}}
}

func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateMessageInput
	if !decode(w, r, &in) {
		return
	}
	m, fx, err := h.eng.CreateMessage(r.Context(), actor(r), in)
	h.respond(w, r, http.StatusCreated, m, fx, err)
}

type updateMessageRequest struct {
	Content string `json:"content"`
}

func (h *MessageHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateMessageRequest
	if !decode(w, r, &req) {
		return
	}
	m, fx, err := h.eng.UpdateMessage(r.Context(), actor(r), chi.URLParam(r, "id"), req.Content)
	h.respond(w, r, http.StatusOK, m, fx, err)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	fx, err := h.eng.DeleteMessage(r.Context(), actor(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusNoContent, nil, fx, err)
}

func (h *MessageHandler) Readers(w http.ResponseWriter, r *http.Request) {
	readers, err := h.eng.MessageReaders(r.Context(), actor(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, readers, realtime.Effects{}, err)
}
