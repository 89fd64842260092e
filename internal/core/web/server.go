package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/seckatie/smartbookmark/internal/core"
	"github.com/seckatie/smartbookmark/internal/core/auth"
	"github.com/seckatie/smartbookmark/internal/core/db"
	"github.com/seckatie/smartbookmark/internal/core/feed"
	"github.com/seckatie/smartbookmark/internal/logger"
)

//go:embed templates/*.html static/*
var templatesFS embed.FS

// Options wires the server to its collaborators.
type Options struct {
	Addr          string
	DB            *db.DB
	Hub           *feed.Hub
	Sessions      *auth.Sessions
	Providers     []auth.Provider
	Titles        core.TitleOptions
	SecureCookies bool
	// SyncPolicy is handed to the dashboard script: "feed-only" or
	// "apply-confirmed".
	SyncPolicy string
	Log        logger.Logger
}

type Server struct {
	db            *db.DB
	hub           *feed.Hub
	sessions      *auth.Sessions
	providers     map[string]auth.Provider
	providerNames []string
	titles        core.TitleOptions
	secureCookies bool
	syncPolicy    string
	log           logger.Logger
	templates     *template.Template
	staticFS      http.FileSystem
	started       time.Time
	http          *http.Server
}

func NewServer(opts Options) (*Server, error) {
	if opts.DB == nil || opts.Hub == nil || opts.Sessions == nil {
		return nil, errors.New("web: db, hub and sessions are required")
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.SyncPolicy == "" {
		opts.SyncPolicy = "feed-only"
	}
	if opts.Titles.Log == nil {
		opts.Titles.Log = opts.Log
	}

	templates, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	staticSub, err := fs.Sub(templatesFS, "static")
	if err != nil {
		return nil, err
	}

	ws := &Server{
		db:            opts.DB,
		hub:           opts.Hub,
		sessions:      opts.Sessions,
		providers:     make(map[string]auth.Provider, len(opts.Providers)),
		titles:        opts.Titles,
		secureCookies: opts.SecureCookies,
		syncPolicy:    opts.SyncPolicy,
		log:           opts.Log,
		templates:     templates,
		staticFS:      http.FS(staticSub),
		started:       time.Now(),
	}
	for _, p := range opts.Providers {
		ws.providers[p.Name()] = p
		ws.providerNames = append(ws.providerNames, p.Name())
	}

	ws.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return ws, nil
}

// Handler builds the router.
func (ws *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.GetHead)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(ws.log))
	r.Use(ws.withSession)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(ws.staticFS)))
	r.Get("/healthz", ws.handleHealthz)

	r.Get("/", ws.handleIndex)
	r.Get("/login", ws.handleLogin)
	r.Get("/dashboard", ws.handleDashboard)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/{provider}/login", ws.handleSignIn)
		r.Get("/{provider}/callback", ws.handleCallback)
		r.Post("/logout", ws.handleLogout)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(requireSession)
		r.Get("/session", ws.handleSession)
		r.Get("/bookmarks", ws.listBookmarks)
		r.Post("/bookmarks", ws.createBookmark)
		r.Patch("/bookmarks/{id}", ws.updateBookmark)
		r.Delete("/bookmarks/{id}", ws.deleteBookmark)
		r.Get("/title", ws.handleTitle)
		r.Get("/feed", ws.handleFeed)
	})

	return r
}

// Start runs the HTTP server (blocks until error or shutdown).
func (ws *Server) Start() error {
	ws.log.Info("HTTP server listening", logger.String("addr", ws.http.Addr))
	err := ws.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server with the provided context deadline.
func (ws *Server) Stop(ctx context.Context) error {
	ws.log.Info("HTTP server shutting down")
	return ws.http.Shutdown(ctx)
}
