// Package server provides the HTTP server and handlers.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/bryan-buckman/spacetraveling/internal/cms"
	"github.com/bryan-buckman/spacetraveling/internal/feed"
	"github.com/bryan-buckman/spacetraveling/internal/listing"
	"github.com/bryan-buckman/spacetraveling/internal/model"
	"github.com/bryan-buckman/spacetraveling/internal/revalidate"
	"github.com/bryan-buckman/spacetraveling/internal/view"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// LoadingRetry is how long the post placeholder waits before reloading
// while the backend cannot be reached.
const LoadingRetry = 5 * time.Second

// Posts is the content the pages are rendered from.
type Posts interface {
	Home(ctx context.Context) (model.Page, error)
	Post(ctx context.Context, uid string) (*model.PostDetail, error)
}

// Settings is the part of the store the health check reads.
type Settings interface {
	GetSetting(key string) (string, error)
}

// Options configures a server.
type Options struct {
	SiteTitle string
	BaseURL   string
	// CursorHost restricts load-more cursors to the content backend's host.
	// Empty allows any http(s) URL.
	CursorHost string
}

// Server is the main HTTP server.
type Server struct {
	posts       Posts
	loader      *listing.Loader
	settings    Settings
	revalidator *revalidate.Revalidator
	view        *view.View
	opts        Options
	logger      *zap.Logger
	router      chi.Router
	http        *http.Server
}

// New creates a new server. revalidator may be nil.
func New(posts Posts, loader *listing.Loader, settings Settings, revalidator *revalidate.Revalidator, opts Options, logger *zap.Logger) (*Server, error) {
	v, err := view.New(opts.SiteTitle)
	if err != nil {
		return nil, err
	}

	s := &Server{
		posts:       posts,
		loader:      loader,
		settings:    settings,
		revalidator: revalidator,
		view:        v,
		opts:        opts,
		logger:      logger,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// Serve static files.
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(view.Static()))))

	// Pages.
	r.Get("/", s.handleHome)
	r.Get("/post/{slug}", s.handlePost)
	r.Get("/posts/more", s.handleMore)
	r.Get("/feed.xml", s.handleFeed)
	r.Get("/healthz", s.handleHealth)
	r.NotFound(s.handleNotFound)

	s.router = r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the revalidator and serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	if s.revalidator != nil {
		s.revalidator.Start()
	}
	s.http = &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	s.logger.Info("server starting", zap.String("addr", addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and stops the revalidator.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.revalidator != nil {
		s.revalidator.Stop()
	}
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// --- Page Handlers ---

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	page, err := s.posts.Home(r.Context())
	if err != nil {
		s.logger.Error("load home", zap.Error(err))
		http.Error(w, "Failed to load posts", http.StatusBadGateway)
		return
	}
	s.render(w, http.StatusOK, func(buf *bytes.Buffer) error {
		return s.view.Home(buf, listing.Initial(page), moreURL)
	})
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "slug")
	post, err := s.posts.Post(r.Context(), uid)
	switch {
	case errors.Is(err, cms.ErrNotFound):
		s.handleNotFound(w, r)
		return
	case err != nil:
		s.logger.Warn("load post", zap.String("uid", uid), zap.Error(err))
		w.Header().Set("Retry-After", "5")
		s.render(w, http.StatusServiceUnavailable, func(buf *bytes.Buffer) error {
			return s.view.Loading(buf, LoadingRetry)
		})
		return
	}
	s.render(w, http.StatusOK, func(buf *bytes.Buffer) error {
		return s.view.Post(buf, post)
	})
}

// handleMore answers a load-more trigger with the next batch of posts as an
// HTML fragment. The cursor travels in the next query parameter.
func (s *Server) handleMore(w http.ResponseWriter, r *http.Request) {
	next := r.URL.Query().Get("next")
	if next == "" {
		http.Error(w, "Missing next page", http.StatusBadRequest)
		return
	}
	if !s.allowedCursor(next) {
		http.Error(w, "Invalid next page", http.StatusBadRequest)
		return
	}

	before := listing.State{Cursor: model.Cursor{NextPage: &next}}
	after, err := s.loader.LoadMore(r.Context(), before)
	status := http.StatusOK
	if err != nil {
		s.logger.Warn("load more", zap.String("next", next), zap.Error(err))
		status = http.StatusBadGateway
	}
	s.render(w, status, func(buf *bytes.Buffer) error {
		return s.view.More(buf, after.Posts, after, moreURL)
	})
}

// handleFeed walks the whole listing, as the static build does, so the feed
// carries every post.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	first, err := s.posts.Home(r.Context())
	if err != nil {
		s.logger.Error("load feed", zap.Error(err))
		http.Error(w, "Failed to load posts", http.StatusBadGateway)
		return
	}
	session := listing.NewSession(s.loader, listing.Initial(first))
	defer session.Close()
	all, err := session.Drain(r.Context())
	if err != nil {
		s.logger.Error("walk listing for feed", zap.Error(err))
		http.Error(w, "Failed to load posts", http.StatusBadGateway)
		return
	}
	data, err := feed.Build(s.opts.SiteTitle, s.opts.BaseURL, all.Posts)
	if err != nil {
		http.Error(w, "Failed to export", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	last, _ := s.settings.GetSetting(model.SettingLastRevalidated)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":           "ok",
		"last_revalidated": last,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusNotFound, func(buf *bytes.Buffer) error {
		return s.view.NotFound(buf)
	})
}

// --- Helpers ---

// render buffers the page so a template error can still produce a clean 500.
func (s *Server) render(w http.ResponseWriter, status int, fn func(buf *bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		s.logger.Error("template error", zap.Error(err))
		http.Error(w, "Render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// allowedCursor keeps the load-more endpoint from fetching arbitrary hosts:
// cursors must point at the content backend.
func (s *Server) allowedCursor(next string) bool {
	u, err := url.Parse(next)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if s.opts.CursorHost == "" {
		return true
	}
	return u.Host == s.opts.CursorHost
}

func moreURL(next string) string {
	return "/posts/more?next=" + url.QueryEscape(next)
}
