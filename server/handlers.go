package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/umputun/newsdigest/pkg/digest"
	"github.com/umputun/newsdigest/pkg/domain"
	"github.com/umputun/newsdigest/pkg/job"
	"github.com/umputun/newsdigest/pkg/reapply"
)

// jobResponse is a job state with its current digest
type jobResponse struct {
	ID     string        `json:"id"`
	State  job.State     `json:"state"`
	Digest domain.Digest `json:"digest"`
}

// statusHandler returns server status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"version": s.Version,
		"time":    time.Now().UTC(),
		"jobs":    s.Jobs.Stats(),
	}
	renderJSON(w, r, http.StatusOK, status)
}

// startJobHandler starts a new job for the owner, replacing the owner's previous one
func (s *Server) startJobHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, fmt.Errorf("invalid job request: %w", err), http.StatusBadRequest)
		return
	}

	c, err := s.Jobs.Start(r.Context(), owner(r), req)
	if err != nil {
		if errors.Is(err, job.ErrInvalidRequest) {
			renderError(w, r, err, http.StatusBadRequest)
			return
		}
		log.Printf("[ERROR] failed to start job: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusCreated, map[string]string{"id": c.ID()})
}

// currentJobHandler returns the live job of the owner
func (s *Server) currentJobHandler(w http.ResponseWriter, r *http.Request) {
	c, err := s.Jobs.Current(owner(r))
	if err != nil {
		renderJobError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, jobResponse{ID: c.ID(), State: c.State(), Digest: c.Snapshot()})
}

func (s *Server) getJobHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := s.job(w, r)
	if !ok {
		return
	}
	renderJSON(w, r, http.StatusOK, jobResponse{ID: c.ID(), State: c.State(), Digest: c.Snapshot()})
}

// cancelJobHandler cancels the job, the digest keeps what was received so far
func (s *Server) cancelJobHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Jobs.Cancel(id); err != nil {
		renderJobError(w, r, err)
		return
	}
	c, ok := s.job(w, r)
	if !ok {
		return
	}
	renderJSON(w, r, http.StatusOK, map[string]any{"id": id, "state": c.State()})
}

// eventsHandler streams snapshots and log lines of the job as server-sent events.
// The current snapshot is sent right away, the stream stays open until the client leaves.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := s.job(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Printf("[WARN] can't lift write deadline for events of %s: %v", c.ID(), err)
	}

	sub, unsubscribe := s.Hub.subscribe(c.ID())
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	initial, err := json.Marshal(c.Snapshot())
	if err != nil {
		log.Printf("[ERROR] can't marshal snapshot of %s: %v", c.ID(), err)
		return
	}
	if err := writeEvent(w, rc, "snapshot", initial); err != nil {
		return
	}

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-sub.notify:
			logs, snapshot := sub.take()
			for _, l := range logs {
				if err := writeEvent(w, rc, "log", l); err != nil {
					return
				}
			}
			if snapshot != nil {
				if err := writeEvent(w, rc, "snapshot", snapshot); err != nil {
					return
				}
			}
		}
	}
}

func (s *Server) getSelectionHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := s.job(w, r)
	if !ok {
		return
	}
	renderJSON(w, r, http.StatusOK, map[string][]string{"selected": c.Selection()})
}

// setSelectionHandler records a manual selection override
func (s *Server) setSelectionHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := s.job(w, r)
	if !ok {
		return
	}
	var req struct {
		URL      string `json:"url"`
		Selected bool   `json:"selected"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		renderError(w, r, errors.New("invalid selection request"), http.StatusBadRequest)
		return
	}

	if err := c.SetSelected(req.URL, req.Selected); err != nil {
		switch {
		case errors.Is(err, digest.ErrNotFound):
			renderError(w, r, err, http.StatusNotFound)
		default:
			renderError(w, r, err, http.StatusConflict)
		}
		return
	}
	renderJSON(w, r, http.StatusOK, map[string][]string{"selected": c.Selection()})
}

// resetSelectionHandler drops manual overrides, selection follows automatic rules again
func (s *Server) resetSelectionHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := s.job(w, r)
	if !ok {
		return
	}
	c.ResetSelection()
	renderJSON(w, r, http.StatusOK, map[string][]string{"selected": c.Selection()})
}

func (s *Server) reportSpamHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := s.job(w, r)
	if !ok {
		return
	}
	var req struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		renderError(w, r, errors.New("invalid spam report"), http.StatusBadRequest)
		return
	}

	if err := c.ReportSpam(r.Context(), req.URL, req.Title); err != nil {
		renderSpamError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, map[string]string{"url": req.URL, "status": "reported"})
}

func (s *Server) unreportSpamHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := s.job(w, r)
	if !ok {
		return
	}
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		renderError(w, r, errors.New("url is required"), http.StatusBadRequest)
		return
	}

	if err := c.UnreportSpam(r.Context(), url); err != nil {
		renderSpamError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, map[string]string{"url": url, "status": "unreported"})
}

// reapplyHandler applies a corrected extraction rule to all articles of its origin in the job
func (s *Server) reapplyHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := s.job(w, r)
	if !ok {
		return
	}
	if s.Reapplier == nil {
		renderError(w, r, errors.New("rule reapplication is not available"), http.StatusServiceUnavailable)
		return
	}

	var req reapply.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, fmt.Errorf("invalid reapply request: %w", err), http.StatusBadRequest)
		return
	}

	rep, err := s.Reapplier.Reapply(r.Context(), c, req)
	if err != nil {
		if errors.Is(err, reapply.ErrNoOrigin) {
			renderError(w, r, err, http.StatusBadRequest)
			return
		}
		log.Printf("[ERROR] reapply for job %s failed: %v", c.ID(), err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, rep)
}

// job resolves the job from the path, writes the error response if there is none
func (s *Server) job(w http.ResponseWriter, r *http.Request) (*job.Controller, bool) {
	c, err := s.Jobs.Get(r.PathValue("id"))
	if err != nil {
		renderJobError(w, r, err)
		return nil, false
	}
	return c, true
}

func renderJobError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, job.ErrNotFound) {
		renderError(w, r, err, http.StatusNotFound)
		return
	}
	renderError(w, r, err, http.StatusInternalServerError)
}

func renderSpamError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, job.ErrNoStorage) {
		renderError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	log.Printf("[ERROR] spam flag update failed: %v", err)
	renderError(w, r, err, http.StatusInternalServerError)
}

// owner returns the job owner of the request, requests without one share the default owner
func owner(r *http.Request) string {
	if o := strings.TrimSpace(r.Header.Get(ownerHeader)); o != "" {
		return o
	}
	return "default"
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("write %s event: %w", event, err)
	}
	if err := rc.Flush(); err != nil {
		return fmt.Errorf("flush %s event: %w", event, err)
	}
	return nil
}
