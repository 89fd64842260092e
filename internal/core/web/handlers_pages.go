package web

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/seckatie/smartbookmark/internal/version"
)

func (ws *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentSession(r); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (ws *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	target := safeTarget(r.URL.Query().Get("redirect"))
	if _, ok := currentSession(r); ok {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	ws.renderLogin(w, http.StatusOK, target, "")
}

func (ws *Server) renderLogin(w http.ResponseWriter, status int, target, errMsg string) {
	data := loginView{Error: errMsg}
	for _, name := range ws.providerNames {
		data.Providers = append(data.Providers, providerView{
			Name:     name,
			LoginURL: "/auth/" + url.PathEscape(name) + "/login?redirect=" + url.QueryEscape(safeTarget(target)),
		})
	}
	ws.renderTemplate(w, status, "login.html", data)
}

func (ws *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(r)
	if !ok {
		http.Redirect(w, r, "/login?redirect="+url.QueryEscape("/dashboard"), http.StatusSeeOther)
		return
	}
	ws.renderTemplate(w, http.StatusOK, "dashboard.html", dashboardView{
		Email:      s.Email,
		SyncPolicy: ws.syncPolicy,
		Version:    version.Version,
	})
}

type healthzResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version,omitempty"`
	Commit        string  `json:"commit,omitempty"`
	BuildDate     string  `json:"build_date,omitempty"`
	GoVersion     string  `json:"go_version,omitempty"`
}

func (ws *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := ws.db.Ping(r.Context()); err != nil {
		status, code = "db unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(healthzResponse{
		Status:        status,
		Version:       version.Version,
		Commit:        version.Commit,
		BuildDate:     version.BuildDate,
		GoVersion:     version.GoVersion,
		UptimeSeconds: time.Since(ws.started).Seconds(),
	})
}
