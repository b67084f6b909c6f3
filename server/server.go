package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/newsdigest/pkg/domain"
	"github.com/umputun/newsdigest/pkg/job"
	"github.com/umputun/newsdigest/pkg/metrics"
	"github.com/umputun/newsdigest/pkg/reapply"
)

//go:generate moq -out mocks/reapplier.go -pkg mocks -skip-ensure -fmt goimports . Reapplier

// ownerHeader carries the identity of the user owning a job
const ownerHeader = "X-Owner"

// Server represents HTTP server instance
type Server struct {
	Params

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// Params configures Server
type Params struct {
	Listen    string
	Timeout   time.Duration
	Version   string
	Debug     bool
	Jobs      Jobs
	Reapplier Reapplier
	Hub       *Hub
	Metrics   *metrics.Metrics
}

// Jobs is the job registry
type Jobs interface {
	Start(ctx context.Context, owner string, req domain.JobRequest) (*job.Controller, error)
	Get(id string) (*job.Controller, error)
	Current(owner string) (*job.Controller, error)
	Cancel(id string) error
	Stats() map[job.State]int
}

// Reapplier runs rule reapplication passes
type Reapplier interface {
	Reapply(ctx context.Context, target reapply.Target, req reapply.Request) (reapply.Report, error)
}

// New initializes a new server instance
func New(p Params) *Server {
	if p.Hub == nil {
		p.Hub = NewHub()
	}
	s := &Server{Params: p, router: routegroup.New(http.NewServeMux())}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	log.Printf("[INFO] starting server on %s", s.Listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:              s.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: s.Timeout,
		ReadTimeout:       s.Timeout,
		WriteTimeout:      s.Timeout, // event streams lift it per request
	}
	srv := s.httpServer
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("newsdigest", "umputun", s.Version))
	s.router.Use(rest.Ping)

	if s.Debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(500))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)

		r.HandleFunc("POST /jobs", s.startJobHandler)
		r.HandleFunc("GET /jobs/current", s.currentJobHandler)
		r.HandleFunc("GET /jobs/{id}", s.getJobHandler)
		r.HandleFunc("DELETE /jobs/{id}", s.cancelJobHandler)
		r.HandleFunc("GET /jobs/{id}/events", s.eventsHandler)

		r.HandleFunc("GET /jobs/{id}/selection", s.getSelectionHandler)
		r.HandleFunc("PUT /jobs/{id}/selection", s.setSelectionHandler)
		r.HandleFunc("DELETE /jobs/{id}/selection", s.resetSelectionHandler)

		r.HandleFunc("POST /jobs/{id}/spam", s.reportSpamHandler)
		r.HandleFunc("DELETE /jobs/{id}/spam", s.unreportSpamHandler)

		r.HandleFunc("POST /jobs/{id}/reapply", s.reapplyHandler)
	})

	s.router.Handle("GET /metrics", s.Metrics.Handler())
}

// renderJSON sends JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// renderError sends error response as JSON
func renderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	renderJSON(w, r, code, map[string]string{"error": errMsg})
}
