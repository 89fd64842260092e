package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/seckatie/smartbookmark/internal/core/db"
	"github.com/seckatie/smartbookmark/internal/logger"
)

const maxBodySize = 64 << 10

// renderTemplate renders a template with the standard HTML content-type header
// and the given status. The page is rendered before anything is written, so if
// template execution fails it logs the error and returns a plain 500 instead.
func (ws *Server) renderTemplate(w http.ResponseWriter, status int, templateName string, data any) {
	var buf bytes.Buffer
	if err := ws.templates.ExecuteTemplate(&buf, templateName, data); err != nil {
		ws.log.Error("failed to execute template", logger.String("template", templateName), logger.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// storeError maps a store error onto an API response.
func (ws *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, db.ErrInvalidURL), errors.Is(err, db.ErrInvalidBookmark):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "bookmark not found")
	default:
		ws.log.Error("store call failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
