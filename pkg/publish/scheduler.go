// Package publish throttles delivery of digest snapshots to observers.
package publish

import (
	"sync"
	"time"

	"github.com/juju/clock"
	"golang.org/x/time/rate"

	"github.com/umputun/newsdigest/pkg/domain"
	"github.com/umputun/newsdigest/pkg/metrics"
)

// Observer receives full digest snapshots and advisory log lines
type Observer interface {
	Publish(d domain.Digest)
	Advise(msg string)
}

// Params configures Scheduler
type Params struct {
	Clock       clock.Clock
	Interval    time.Duration // minimal gap between best-effort publishes
	LogInterval time.Duration // minimal gap between advisory log deliveries
	LogBurst    int
	Source      func() domain.Digest // snapshot provider, called at delivery time
	Observer    Observer
	Metrics     *metrics.Metrics
}

// Scheduler limits how often snapshots reach the observer. Best-effort requests are
// coalesced to at most one publish per interval, the first one goes out immediately.
// Forced publishes (done, error, cancel, corrections) are delivered at once and cancel any
// pending throttled publish. Log lines have their own rate limit and never delay snapshots.
type Scheduler struct {
	clock    clock.Clock
	interval time.Duration
	source   func() domain.Digest
	observer Observer
	metrics  *metrics.Metrics
	logLimit *rate.Limiter

	mu        sync.Mutex
	published bool // at least one publish happened
	lastAt    time.Time
	timer     clock.Timer
	gen       int // generation of the pending timer, stale timers are ignored
	stopped   bool

	deliverMu sync.Mutex // serializes observer calls so snapshot versions never go back
}

// New makes a Scheduler with defaults for zero params: 200ms interval, one log per second with burst 5
func New(p Params) *Scheduler {
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}
	if p.Interval <= 0 {
		p.Interval = 200 * time.Millisecond
	}
	if p.LogInterval <= 0 {
		p.LogInterval = time.Second
	}
	if p.LogBurst <= 0 {
		p.LogBurst = 5
	}
	return &Scheduler{
		clock:    p.Clock,
		interval: p.Interval,
		source:   p.Source,
		observer: p.Observer,
		metrics:  p.Metrics,
		logLimit: rate.NewLimiter(rate.Every(p.LogInterval), p.LogBurst),
	}
}

// Request asks for a best-effort publish of the current state
func (s *Scheduler) Request() {
	s.mu.Lock()
	if s.stopped || s.timer != nil {
		s.mu.Unlock()
		return
	}

	now := s.clock.Now()
	since := now.Sub(s.lastAt)
	if !s.published || since >= s.interval {
		s.markLocked(now)
		s.mu.Unlock()
		s.deliver(metrics.PublishThrottled)
		return
	}

	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.interval-since, func() { s.fire(gen) })
	s.mu.Unlock()
}

// PublishNow delivers the current state immediately, bypassing and cancelling any pending throttled publish
func (s *Scheduler) PublishNow() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.cancelLocked()
	s.markLocked(s.clock.Now())
	s.mu.Unlock()
	s.deliver(metrics.PublishForced)
}

// Log passes advisory text to the observer unless the log rate limit is exhausted.
// Returns false for dropped lines.
func (s *Scheduler) Log(msg string) bool {
	if !s.logLimit.AllowN(s.clock.Now(), 1) {
		s.metrics.LogDropped()
		return false
	}
	if s.observer != nil {
		s.observer.Advise(msg)
	}
	return true
}

// Stop cancels a pending publish and turns all further requests into no-ops
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.cancelLocked()
}

// Pending reports whether a throttled publish is scheduled
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *Scheduler) fire(gen int) {
	s.mu.Lock()
	if s.stopped || s.timer == nil || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.markLocked(s.clock.Now())
	s.mu.Unlock()
	s.deliver(metrics.PublishThrottled)
}

func (s *Scheduler) markLocked(now time.Time) {
	s.published = true
	s.lastAt = now
}

func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Scheduler) deliver(kind string) {
	if s.source == nil || s.observer == nil {
		return
	}
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.observer.Publish(s.source())
	s.metrics.Published(kind)
}
