// Package job runs generation jobs. A Controller owns one digest aggregate, consumes the
// job's event stream with a single reader goroutine and notifies observers through the
// publish scheduler. Registry keeps one live job per owner.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/umputun/newsdigest/pkg/digest"
	"github.com/umputun/newsdigest/pkg/domain"
	"github.com/umputun/newsdigest/pkg/metrics"
	"github.com/umputun/newsdigest/pkg/publish"
	"github.com/umputun/newsdigest/pkg/stream"
)

//go:generate moq -out mocks/submitter.go -pkg mocks -skip-ensure -fmt goimports . Submitter
//go:generate moq -out mocks/spam_store.go -pkg mocks -skip-ensure -fmt goimports . SpamStore

// State of a job controller. Terminal states are one-way.
type State string

// controller states
const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateDone       State = "done"
	StateAborted    State = "aborted"
	StateFailed     State = "failed"
)

// Terminal reports whether the state is final
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted || s == StateFailed
}

// errors of job controller
var (
	ErrStarted   = errors.New("job already started")
	ErrSilence   = errors.New("no events received")
	ErrNoDone    = errors.New("stream ended without done event")
	ErrNotFound  = errors.New("job not found")
	ErrNoStorage = errors.New("spam storage not configured")
)

// Submitter opens the event stream of a generation job
type Submitter interface {
	Submit(ctx context.Context, req domain.JobRequest) (io.ReadCloser, error)
}

// SpamStore persists spam flags
type SpamStore interface {
	ReportSpam(ctx context.Context, report domain.SpamReport) error
	UnreportSpam(ctx context.Context, url string) error
	SpamURLs(ctx context.Context) ([]string, error)
}

// Params configures Controller
type Params struct {
	ID        string
	Request   domain.JobRequest
	Submitter Submitter
	Observer  publish.Observer
	SpamStore SpamStore
	Selector  *digest.Selector
	SpamURLs  []string
	Clock     clock.Clock
	Metrics   *metrics.Metrics

	Silence     time.Duration // max time without any stream data, default 2m
	ChunkSize   int
	Interval    time.Duration // publish throttle interval
	LogInterval time.Duration
	LogBurst    int
}

// Controller drives one generation job through idle, connecting, streaming and a terminal state
type Controller struct {
	id        string
	req       domain.JobRequest
	agg       *digest.Aggregate
	sched     *publish.Scheduler
	submitter Submitter
	spam      SpamStore
	clock     clock.Clock
	metrics   *metrics.Metrics
	silence   time.Duration
	chunkSize int

	mu              sync.Mutex
	state           State
	cancel          context.CancelFunc
	cancelRequested bool
	legacyResult    bool
	done            chan struct{}
}

// NewController makes an idle controller with a fresh aggregate
func NewController(p Params) *Controller {
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}
	if p.Silence <= 0 {
		p.Silence = 2 * time.Minute
	}
	if p.ChunkSize <= 0 {
		p.ChunkSize = 32 * 1024
	}
	if p.Selector == nil {
		p.Selector = digest.NewSelector(nil, p.Clock.Now)
	}

	res := &Controller{
		id:        p.ID,
		req:       p.Request,
		agg:       digest.New(p.ID, p.Request, p.Selector, p.SpamURLs),
		submitter: p.Submitter,
		spam:      p.SpamStore,
		clock:     p.Clock,
		metrics:   p.Metrics,
		silence:   p.Silence,
		chunkSize: p.ChunkSize,
		state:     StateIdle,
		done:      make(chan struct{}),
	}
	res.sched = publish.New(publish.Params{
		Clock:       p.Clock,
		Interval:    p.Interval,
		LogInterval: p.LogInterval,
		LogBurst:    p.LogBurst,
		Source:      res.agg.Snapshot,
		Observer:    p.Observer,
		Metrics:     p.Metrics,
	})
	return res
}

// ID returns job id
func (c *Controller) ID() string { return c.id }

// Request returns the job request
func (c *Controller) Request() domain.JobRequest { return c.req }

// State returns current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the job reached a terminal state
func (c *Controller) Done() <-chan struct{} { return c.done }

// Start submits the job and starts the reader goroutine. ctx bounds the whole job lifetime.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = StateConnecting
	c.mu.Unlock()

	c.metrics.JobStarted()
	log.Printf("[INFO] job %s started, category=%q, city=%q, timeframe=%s, sources=%d",
		c.id, c.req.Category, c.req.City, c.req.Timeframe, len(c.req.SourceIDs))
	go c.run(ctx)
	return nil
}

// Cancel asks the job to stop at the next decode boundary. The job ends as aborted, which is
// not an error. Cancelling a finished job does nothing.
func (c *Controller) Cancel() {
	c.mu.Lock()
	switch {
	case c.state.Terminal():
		c.mu.Unlock()
		return
	case c.state == StateIdle:
		c.state = StateAborted
		c.mu.Unlock()
		c.agg.Finish(domain.StatusAborted, "")
		close(c.done)
		return
	}
	c.cancelRequested = true
	cancel := c.cancel
	c.mu.Unlock()
	cancel()
}

// Close cancels the job, waits for the reader to exit and stops publishing
func (c *Controller) Close() {
	c.Cancel()
	<-c.done
	c.sched.Stop()
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	defer c.cancel()

	body, err := c.submitter.Submit(ctx, c.req)
	if err != nil {
		c.fail(ctx, fmt.Errorf("submit job: %w", err))
		return
	}
	defer body.Close()

	chunks := make(chan chunk)
	go c.pump(ctx, body, chunks)

	dec := stream.NewDecoder(stream.WithWarn(func(line []byte, err error) {
		c.metrics.Malformed()
		log.Printf("[WARN] job %s, skip malformed line %q: %v", c.id, truncate(line, 128), err)
	}))

	watchdog := c.clock.NewTimer(c.silence)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			c.fail(ctx, ctx.Err())
			return

		case <-watchdog.Chan():
			c.fail(ctx, fmt.Errorf("%w for %v", ErrSilence, c.silence))
			return

		case ch := <-chunks:
			if len(ch.data) > 0 {
				events := dec.Feed(ch.data)
				if len(events) > 0 {
					// silence is measured between events, a partial line does not count
					watchdog.Reset(c.silence)
				}
				c.streaming()
				if c.handle(ctx, events) {
					return
				}
			}
			if ch.err == nil {
				continue
			}
			if !errors.Is(ch.err, io.EOF) {
				c.fail(ctx, fmt.Errorf("read stream: %w", ch.err))
				return
			}
			if c.handle(ctx, dec.Flush()) {
				return
			}
			c.ended(ctx)
			return
		}
	}
}

type chunk struct {
	data []byte
	err  error
}

// pump reads the body and sends chunks until the first error, including io.EOF
func (c *Controller) pump(ctx context.Context, body io.Reader, out chan<- chunk) {
	for {
		buf := make([]byte, c.chunkSize)
		n, err := body.Read(buf)
		select {
		case out <- chunk{data: buf[:n], err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// handle applies decoded events in order. Cancellation is checked before each event.
// Returns true if the job reached a terminal state.
func (c *Controller) handle(ctx context.Context, events []stream.Event) bool {
	for _, ev := range events {
		if ctx.Err() != nil {
			c.fail(ctx, ctx.Err())
			return true
		}
		c.metrics.Event(string(ev.Type))

		outcome, err := c.agg.Apply(ev)
		if err != nil {
			log.Printf("[WARN] job %s, can't apply %s event: %v", c.id, ev.Type, err)
			continue
		}
		if ev.Type == stream.EventResult {
			c.mu.Lock()
			c.legacyResult = true
			c.mu.Unlock()
		}

		switch outcome.Effect {
		case digest.EffectData:
			if outcome.Duplicates > 0 {
				log.Printf("[DEBUG] job %s, %d duplicate articles discarded", c.id, outcome.Duplicates)
			}
			c.sched.Request()
		case digest.EffectLog:
			c.sched.Log(ev.Message)
		case digest.EffectError:
			log.Printf("[WARN] job %s, upstream error: %s", c.id, ev.Message)
			c.sched.PublishNow()
		case digest.EffectDone:
			c.finish(StateDone, "")
			return true
		case digest.EffectNone:
		}
	}
	return false
}

// ended handles a stream finished without a done event
func (c *Controller) ended(ctx context.Context) {
	c.mu.Lock()
	legacy := c.legacyResult
	c.mu.Unlock()
	if legacy {
		c.agg.Recompute()
		c.finish(StateDone, "")
		return
	}
	c.fail(ctx, ErrNoDone)
}

// fail ends the job as aborted if the user asked for cancellation, as failed otherwise
func (c *Controller) fail(ctx context.Context, err error) {
	c.mu.Lock()
	requested := c.cancelRequested
	c.mu.Unlock()
	if requested && (ctx.Err() != nil || errors.Is(err, context.Canceled)) {
		c.finish(StateAborted, "")
		return
	}
	log.Printf("[WARN] job %s failed: %v", c.id, err)
	c.finish(StateFailed, FailureMessage(err))
}

func (c *Controller) streaming() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateConnecting {
		c.state = StateStreaming
	}
}

func (c *Controller) finish(state State, msg string) {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()

	status := domain.StatusFailed
	switch state {
	case StateDone:
		status = domain.StatusDone
	case StateAborted:
		status = domain.StatusAborted
	}
	c.agg.Finish(status, msg)
	c.sched.PublishNow()
	c.metrics.JobFinished(string(status))
	snap := c.agg.Snapshot()
	log.Printf("[INFO] job %s %s, active=%d, excluded=%d, spam=%d", c.id, state,
		len(snap.Active), len(snap.Excluded), len(snap.Spam))
}

// Snapshot returns a copy of the current digest
func (c *Controller) Snapshot() domain.Digest { return c.agg.Snapshot() }

// Selection returns urls of currently selected (active) articles
func (c *Controller) Selection() []string { return c.agg.Selection() }

// SetSelected manually selects or deselects an article and publishes the change
func (c *Controller) SetSelected(url string, selected bool) error {
	if err := c.agg.SetSelected(url, selected); err != nil {
		return fmt.Errorf("set selected %s: %w", url, err)
	}
	c.sched.PublishNow()
	return nil
}

// ResetSelection drops manual selection overrides
func (c *Controller) ResetSelection() {
	c.agg.ResetSelection()
	c.sched.PublishNow()
}

// ReportSpam persists the spam flag and moves the article to the spam partition
func (c *Controller) ReportSpam(ctx context.Context, url, title string) error {
	if c.spam == nil {
		return ErrNoStorage
	}
	if a, _, ok := c.agg.Lookup(url); ok && title == "" {
		title = a.Title
	}
	report := domain.SpamReport{URL: url, Origin: domain.Origin(url), Title: title}
	if err := c.spam.ReportSpam(ctx, report); err != nil {
		return fmt.Errorf("report spam %s: %w", url, err)
	}
	if c.agg.MarkSpam(url) {
		c.sched.PublishNow()
	}
	return nil
}

// UnreportSpam removes the spam flag and returns the article to its derived partition
func (c *Controller) UnreportSpam(ctx context.Context, url string) error {
	if c.spam == nil {
		return ErrNoStorage
	}
	if err := c.spam.UnreportSpam(ctx, url); err != nil {
		return fmt.Errorf("unreport spam %s: %w", url, err)
	}
	if c.agg.UnmarkSpam(url) {
		c.sched.PublishNow()
	}
	return nil
}

// ArticlesByOrigin returns copies of all articles of the origin
func (c *Controller) ArticlesByOrigin(origin string) []domain.Article {
	return c.agg.ArticlesByOrigin(origin)
}

// ApplyCorrections applies a batch of corrections atomically and publishes the result at once
func (c *Controller) ApplyCorrections(corrections []digest.Correction) []digest.Change {
	changes := c.agg.ApplyCorrections(corrections)
	if len(changes) > 0 {
		c.sched.PublishNow()
	}
	return changes
}

// UpdateVerdict writes back a background verdict, published as an ordinary update
func (c *Controller) UpdateVerdict(url, expectTitle string, v domain.Verdict) error {
	if _, err := c.agg.UpdateVerdict(url, expectTitle, v); err != nil {
		return fmt.Errorf("update verdict: %w", err)
	}
	c.sched.Request()
	return nil
}

// FailureMessage makes a user-facing message for a job failure. Timeouts suggest
// reducing the number of sources.
func FailureMessage(err error) string {
	const fewer = "try selecting fewer sources"
	var timeout interface{ Timeout() bool }
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSilence), errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &timeout) && timeout.Timeout():
		return "generation timed out, " + fewer
	case errors.Is(err, ErrNoDone):
		return "generation ended unexpectedly, " + fewer
	case errors.Is(err, context.Canceled):
		return "generation interrupted"
	default:
		return fmt.Sprintf("generation failed: %v", err)
	}
}

func truncate(b []byte, size int) string {
	if len(b) <= size {
		return string(b)
	}
	return string(b[:size]) + "..."
}
