package web

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seckatie/smartbookmark/internal/core/auth"
	"github.com/seckatie/smartbookmark/internal/logger"
)

const (
	stateCookie   = "oauth_state"
	stateLifetime = 10 * time.Minute
	defaultTarget = "/dashboard"
)

// safeTarget keeps post-login redirects on this site.
func safeTarget(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return defaultTarget
	}
	return target
}

// handleSignIn starts the provider handshake. The state and the redirect
// target travel in a short-lived cookie.
func (ws *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	p, ok := ws.providers[chi.URLParam(r, "provider")]
	if !ok {
		http.NotFound(w, r)
		return
	}

	state, err := auth.NewState()
	if err != nil {
		ws.log.Error("failed to create sign-in state", logger.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	target := safeTarget(r.URL.Query().Get("redirect"))

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state + "." + base64.RawURLEncoding.EncodeToString([]byte(target)),
		Path:     "/auth/",
		MaxAge:   int(stateLifetime.Seconds()),
		HttpOnly: true,
		Secure:   ws.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
}

func (ws *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	p, ok := ws.providers[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	c, err := r.Cookie(stateCookie)
	if err != nil {
		ws.loginFailed(w, "sign-in expired, please try again")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth/", MaxAge: -1})

	state, encodedTarget, _ := strings.Cut(c.Value, ".")
	if state == "" || r.URL.Query().Get("state") != state {
		ws.log.Warn("sign-in state mismatch", logger.String("provider", name))
		ws.loginFailed(w, "sign-in could not be verified")
		return
	}
	if r.URL.Query().Get("error") != "" {
		ws.loginFailed(w, "sign-in was cancelled")
		return
	}

	identity, err := p.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		ws.log.Warn("sign-in exchange failed", logger.String("provider", name), logger.Error(err))
		ws.loginFailed(w, "sign-in failed")
		return
	}

	user, err := ws.db.UpsertUser(r.Context(), identity)
	if err != nil {
		ws.log.Error("failed to store user", logger.Error(err))
		ws.loginFailed(w, "sign-in failed")
		return
	}

	session, err := ws.sessions.Issue(user.ID, user.Email)
	if err != nil {
		ws.log.Error("failed to issue session", logger.Error(err))
		ws.loginFailed(w, "sign-in failed")
		return
	}
	ws.setSessionCookie(w, session)
	ws.log.Info("signed in", logger.String("owner_id", user.ID), logger.String("provider", name))

	target := defaultTarget
	if raw, err := base64.RawURLEncoding.DecodeString(encodedTarget); err == nil {
		target = safeTarget(string(raw))
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (ws *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   ws.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (ws *Server) setSessionCookie(w http.ResponseWriter, s auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   ws.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (ws *Server) loginFailed(w http.ResponseWriter, msg string) {
	ws.renderLogin(w, http.StatusUnauthorized, "", msg)
}
