package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/convo/internal/realtime"
	"github.com/convo/internal/service"
)

// UserHandler — профиль текущего пользователя, блокировки, контакты и поиск.
type UserHandler struct{ base }

func NewUserHandler(eng *service.Engine, fx *realtime.Dispatcher) *UserHandler {
	return &UserHandler{base{eng: eng, fx: fx}}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.eng.Me(r.Context(), actor(r))
	h.respond(w, r, http.StatusOK, u, realtime.Effects{}, err)
}

func (h *UserHandler) Blocked(w http.ResponseWriter, r *http.Request) {
	list, err := h.eng.ListBlocked(r.Context(), actor(r))
	h.respond(w, r, http.StatusOK, list, realtime.Effects{}, err)
}

func (h *UserHandler) Block(w http.ResponseWriter, r *http.Request) {
	b, fx, err := h.eng.Block(r.Context(), actor(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusCreated, b, fx, err)
}

func (h *UserHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	fx, err := h.eng.Unblock(r.Context(), actor(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusNoContent, nil, fx, err)
}

func (h *UserHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	list, err := h.eng.ListContacts(r.Context(), actor(r))
	h.respond(w, r, http.StatusOK, list, realtime.Effects{}, err)
}

func (h *UserHandler) ShowContact(w http.ResponseWriter, r *http.Request) {
	c, err := h.eng.ShowContact(r.Context(), actor(r), chi.URLParam(r, "userId"))
	h.respond(w, r, http.StatusOK, c, realtime.Effects{}, err)
}

func (h *UserHandler) AddContact(w http.ResponseWriter, r *http.Request) {
	var in service.AddContactInput
	if !decode(w, r, &in) {
		return
	}
	c, fx, err := h.eng.AddContact(r.Context(), actor(r), in)
	h.respond(w, r, http.StatusCreated, c, fx, err)
}

func (h *UserHandler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateContactInput
	if !decode(w, r, &in) {
		return
	}
	c, fx, err := h.eng.UpdateContact(r.Context(), actor(r), chi.URLParam(r, "userId"), in)
	h.respond(w, r, http.StatusOK, c, fx, err)
}

func (h *UserHandler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	fx, err := h.eng.DeleteContact(r.Context(), actor(r), chi.URLParam(r, "userId"))
	h.respond(w, r, http.StatusNoContent, nil, fx, err)
}

func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	res, err := h.eng.Search(r.Context(), actor(r), r.URL.Query().Get("q"))
	h.respond(w, r, http.StatusOK, res, realtime.Effects{}, err)
}
