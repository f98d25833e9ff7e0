package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/convo/internal/apperr"
	"github.com/convo/internal/logger"
	"github.com/convo/internal/middleware"
	"github.com/convo/internal/model"
	"github.com/convo/internal/realtime"
	"github.com/convo/internal/service"
)

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeAppError переводит ошибку ядра в статус и тело {"error","code","fields"}.
func writeAppError(w http.ResponseWriter, err error) {
	e := apperr.As(err)
	writeJSON(w, e.Kind.HTTPStatus(), errorResponse{Error: e.Message, Code: e.Code, Fields: e.Fields})
}

// decode читает JSON-тело; при ошибке сам отвечает 400 и возвращает false.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

// page — ?limit=&offset= для истории сообщений; границы нормализует ядро.
func page(r *http.Request) model.MessageFilter {
	return model.MessageFilter{Limit: queryInt(r, "limit", 0), Offset: queryInt(r, "offset", 0)}
}

// base — общая часть обработчиков: ядро и диспетчер эффектов.
type base struct {
	eng *service.Engine
	fx  *realtime.Dispatcher
}

func actor(r *http.Request) string {
	return middleware.GetUserID(r.Context())
}

// respond: ошибка -> writeAppError; иначе эффекты уходят после коммита, затем ответ.
func (b base) respond(w http.ResponseWriter, r *http.Request, status int, data any, fx realtime.Effects, err error) {
	if err != nil {
		writeAppError(w, err)
		return
	}
	b.fx.Dispatch(r.Context(), fx)
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, data)
}
