package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seckatie/smartbookmark/internal/core"
	"github.com/seckatie/smartbookmark/internal/core/db"
	"github.com/seckatie/smartbookmark/internal/logger"
)

type bookmarkRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (ws *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s, _ := currentSession(r)
	writeJSON(w, http.StatusOK, s)
}

func (ws *Server) listBookmarks(w http.ResponseWriter, r *http.Request) {
	s, _ := currentSession(r)
	bookmarks, err := ws.db.ListBookmarksByOwner(r.Context(), s.OwnerID)
	if err != nil {
		ws.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookmarks)
}

func (ws *Server) createBookmark(w http.ResponseWriter, r *http.Request) {
	s, _ := currentSession(r)
	var req bookmarkRequest
	if !decodeBody(w, r, &req) {
		return
	}

	b, err := ws.db.CreateBookmark(r.Context(), db.NewBookmark{
		OwnerID: s.OwnerID,
		Title:   req.Title,
		URL:     req.URL,
	})
	if err != nil {
		ws.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (ws *Server) updateBookmark(w http.ResponseWriter, r *http.Request) {
	s, _ := currentSession(r)
	var req bookmarkRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := ws.db.UpdateBookmark(r.Context(), s.OwnerID, chi.URLParam(r, "id"), db.BookmarkPatch{
		Title: req.Title,
		URL:   req.URL,
	})
	if err != nil {
		ws.storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ws *Server) deleteBookmark(w http.ResponseWriter, r *http.Request) {
	s, _ := currentSession(r)
	if err := ws.db.DeleteBookmark(r.Context(), s.OwnerID, chi.URLParam(r, "id")); err != nil {
		ws.storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type titleResponse struct {
	Title string `json:"title"`
}

func (ws *Server) handleTitle(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}

	title, err := core.SuggestTitle(r.Context(), url, ws.titles)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, titleResponse{Title: title})
	case errors.Is(err, db.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrForbiddenHost):
		writeError(w, http.StatusBadRequest, "url must point to a public host")
	case errors.Is(err, core.ErrNoTitle):
		writeError(w, http.StatusNotFound, "page has no title")
	default:
		ws.log.Warn("title lookup failed", logger.String("url", url), logger.Error(err))
		writeError(w, http.StatusBadGateway, "could not fetch page")
	}
}
