package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/convo/internal/realtime"
	"github.com/convo/internal/service"
)

type GroupHandler struct{ base }

func NewGroupHandler(eng *service.Engine, fx *realtime.Dispatcher) *GroupHandler {
	return &GroupHandler{base{eng: eng, fx: fx}}
}

func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.eng.ListGroups(r.Context(), actor(r))
	h.respond(w, r, http.StatusOK, groups, realtime.Effects{}, err)
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateGroupInput
	if !decode(w, r, &in) {
		return
	}
	g, fx, err := h.eng.CreateGroup(r.Context(), actor(r), in)
	h.respond(w, r, http.StatusCreated, g, fx, err)
}

func (h *GroupHandler) Show(w http.ResponseWriter, r *http.Request) {
	detail, err := h.eng.ShowGroup(r.Context(), actor(r), chi.URLParam(r, "id"), page(r))
	h.respond(w, r, http.StatusOK, detail, realtime.Effects{}, err)
}

func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateGroupInput
	if !decode(w, r, &in) {
		return
	}
	g, fx, err := h.eng.UpdateGroup(r.Context(), actor(r), chi.URLParam(r, "id"), in)
	h.respond(w, r, http.StatusOK, g, fx, err)
}

func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	fx, err := h.eng.DeleteGroup(r.Context(), actor(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusNoContent, nil, fx, err)
}

func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	m, fx, err := h.eng.JoinGroup(r.Context(), actor(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusCreated, m, fx, err)
}

func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	fx, err := h.eng.LeaveGroup(r.Context(), actor(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusNoContent, nil, fx, err)
}

func (h *GroupHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	g, fx, err := h.eng.TransferOwnership(r.Context(), actor(r), chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	h.respond(w, r, http.StatusOK, g, fx, err)
}

func (h *GroupHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	n, fx, err := h.eng.MarkGroupRead(r.Context(), actor(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, readResponse{Count: n}, fx, err)
}

func (h *GroupHandler) Members(w http.ResponseWriter, r *http.Request) {
	members, err := h.eng.ListMembers(r.Context(), actor(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, members, realtime.Effects{}, err)
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
}

func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if !decode(w, r, &req) {
		return
	}
	m, fx, err := h.eng.AddMember(r.Context(), actor(r), chi.URLParam(r, "id"), req.UserID)
	h.respond(w, r, http.StatusCreated, m, fx, err)
}

func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	fx, err := h.eng.RemoveMember(r.Context(), actor(r), chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	h.respond(w, r, http.StatusNoContent, nil, fx, err)
}

func (h *GroupHandler) PromoteToAdmin(w http.ResponseWriter, r *http.Request) {
	m, fx, err := h.eng.PromoteToAdmin(r.Context(), actor(r), chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	h.respond(w, r, http.StatusOK, m, fx, err)
}
