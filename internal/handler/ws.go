package handler

import (
	"net/http"

	"github.com/convo/internal/middleware"
	"github.com/convo/internal/ws"
)

type WSHandler struct {
	hub *ws.Hub
}

func NewWSHandler(hub *ws.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// ServeWS: токен приходит в ?token=, его уже проверил BearerAuth.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.hub.Serve(w, r, userID)
}
