// ABOUTME: HTTP server exposing boards over a JSON API and per-board SSE streams.
// ABOUTME: Explicitly constructed with its collaborators; no package-level instance.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/2389-research/huddle/hub"
	"github.com/2389-research/huddle/store"
)

// Deps carries the collaborators a Server routes between. Store and Hub are
// required; the rest default to safe stand-ins for loopback deployments.
type Deps struct {
	Store   store.Store
	Hub     *hub.Hub
	Journal *store.Journal   // nil: mutations are not journaled
	Auth    *Authenticator   // nil: open mode, callers self-identify
	Members *RedisAuthorizer // nil: membership endpoints disabled
	Dedupe  Deduper          // nil: NoopDeduper
	Log     *logrus.Logger   // nil: logrus standard logger
}

// Server is the HTTP surface over one store, hub, and journal. Construct
// with New and run with ListenAndServe.
type Server struct {
	cfg     *Config
	store   store.Store
	hub     *hub.Hub
	journal *store.Journal
	auth    *Authenticator
	members *RedisAuthorizer
	dedupe  Deduper
	log     *logrus.Logger

	router  chi.Router
	httpSrv *http.Server
}

// New assembles a Server from its configuration and collaborators.
func New(cfg *Config, deps Deps) *Server {
	if deps.Auth == nil {
		deps.Auth = NewOpenAuthenticator()
	}
	if deps.Dedupe == nil {
		deps.Dedupe = NoopDeduper{}
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}

	s := &Server{
		cfg:     cfg,
		store:   deps.Store,
		hub:     deps.Hub,
		journal: deps.Journal,
		auth:    deps.Auth,
		members: deps.Members,
		dedupe:  deps.Dedupe,
		log:     deps.Log,
	}
	s.router = s.buildRouter()
	s.httpSrv = &http.Server{
		Addr:              cfg.Bind,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured bind address with
// timeouts that keep slow clients from pinning resources. Streams live
// inside the write timeout; clients reconnect when it lapses.
func (s *Server) ListenAndServe() error {
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// buildRouter constructs the chi router with all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/boards", func(r chi.Router) {
			r.Post("/", s.handleCreateBoard)
			r.Get("/", s.handleListBoards)

			r.Route("/{boardID}", func(r chi.Router) {
				r.Get("/", s.handleGetBoard)
				r.Post("/commands", s.handleCommands)
				r.Get("/stream", s.handleStream)
				r.Get("/export", s.handleExport)

				r.Post("/members", s.handleGrantMember)
				r.Delete("/members/{userID}", s.handleRevokeMember)
			})
		})

		r.Get("/debug/rooms", s.handleDebugRooms)
		r.Get("/debug/boards/{boardID}/events", s.handleDebugFirehose)
	})

	return r
}

// canAccess applies the same board gate the hub applies on Join. Snapshot
// and command requests go through here so a denied user cannot read or
// mutate a board they could not stream.
func (s *Server) canAccess(ctx context.Context, id hub.Identity, boardID ulid.ULID) error {
	if s.members == nil {
		return nil
	}
	return s.members.CanAccessBoard(ctx, id, boardID)
}
