package server

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/umputun/newsdigest/pkg/domain"
	"github.com/umputun/newsdigest/pkg/publish"
)

// maxPendingLogs bounds advisory lines queued for a slow subscriber, older lines are dropped
const maxPendingLogs = 50

// Hub fans out published snapshots and advisory lines to the event stream subscribers of each job.
// A subscriber keeps only the latest snapshot, a slow reader skips intermediate states but never the last one.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{} // job id -> subscribers
}

// NewHub makes an empty Hub
func NewHub() *Hub {
	return &Hub{subs: map[string]map[*subscriber]struct{}{}}
}

// Observe returns the observer for the job, used as the publish target of the job
func (h *Hub) Observe(jobID string) publish.Observer {
	return &jobObserver{hub: h, jobID: jobID}
}

// Subscribers returns the number of subscribers of the job
func (h *Hub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}

func (h *Hub) subscribe(jobID string) (sub *subscriber, unsubscribe func()) {
	sub = &subscriber{notify: make(chan struct{}, 1)}
	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = map[*subscriber]struct{}{}
	}
	h.subs[jobID][sub] = struct{}{}
	h.mu.Unlock()

	return sub, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[jobID], sub)
		if len(h.subs[jobID]) == 0 {
			delete(h.subs, jobID)
		}
	}
}

func (h *Hub) each(jobID string, fn func(s *subscriber)) {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs[jobID]))
	for s := range h.subs[jobID] {
		subs = append(subs, s)
	}
	h.mu.Unlock()
	for _, s := range subs {
		fn(s)
	}
}

type jobObserver struct {
	hub   *Hub
	jobID string
}

// Publish implements publish.Observer
func (o *jobObserver) Publish(d domain.Digest) {
	data, err := json.Marshal(d)
	if err != nil {
		log.Printf("[WARN] can't marshal snapshot of job %s: %v", o.jobID, err)
		return
	}
	o.hub.each(o.jobID, func(s *subscriber) { s.setSnapshot(data) })
}

// Advise implements publish.Observer
func (o *jobObserver) Advise(msg string) {
	data, err := json.Marshal(map[string]string{"message": msg})
	if err != nil {
		log.Printf("[WARN] can't marshal log line of job %s: %v", o.jobID, err)
		return
	}
	o.hub.each(o.jobID, func(s *subscriber) { s.addLog(data) })
}

// subscriber holds what was published but not yet written to one event stream
type subscriber struct {
	mu       sync.Mutex
	snapshot []byte
	logs     [][]byte
	notify   chan struct{}
}

func (s *subscriber) setSnapshot(data []byte) {
	s.mu.Lock()
	s.snapshot = data
	s.mu.Unlock()
	s.wake()
}

func (s *subscriber) addLog(data []byte) {
	s.mu.Lock()
	if len(s.logs) >= maxPendingLogs {
		s.logs = s.logs[1:]
	}
	s.logs = append(s.logs, data)
	s.mu.Unlock()
	s.wake()
}

func (s *subscriber) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// take returns and clears pending logs and the latest snapshot
func (s *subscriber) take() (logs [][]byte, snapshot []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs, snapshot = s.logs, s.snapshot
	s.logs, s.snapshot = nil, nil
	return logs, snapshot
}
