package job

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/umputun/newsdigest/pkg/digest"
	"github.com/umputun/newsdigest/pkg/domain"
	"github.com/umputun/newsdigest/pkg/metrics"
	"github.com/umputun/newsdigest/pkg/publish"
)

// ErrInvalidRequest is returned for a job request without category
var ErrInvalidRequest = errors.New("invalid job request")

// RegistryParams configures Registry
type RegistryParams struct {
	Submitter Submitter
	SpamStore SpamStore
	Observe   func(jobID string) publish.Observer // observer factory, called once per job
	Cutoffs   digest.Cutoffs
	Clock     clock.Clock
	Metrics   *metrics.Metrics

	Silence     time.Duration
	ChunkSize   int
	Interval    time.Duration
	LogInterval time.Duration
	LogBurst    int
}

// Registry keeps jobs by id and allows one live job per owner. Starting a new job for an owner
// cancels and discards the previous one.
type Registry struct {
	ctx    context.Context
	params RegistryParams

	mu      sync.Mutex
	jobs    map[string]*Controller
	byOwner map[string]string // owner -> job id
	closed  bool
	wg      sync.WaitGroup
}

// NewRegistry makes a Registry. ctx bounds lifetime of all jobs started by the registry.
func NewRegistry(ctx context.Context, p RegistryParams) *Registry {
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}
	return &Registry{ctx: ctx, params: p, jobs: map[string]*Controller{}, byOwner: map[string]string{}}
}

// Start makes and starts a new job for the owner. Spam flags known at this point are
// preloaded into the job aggregate.
func (r *Registry) Start(ctx context.Context, owner string, req domain.JobRequest) (*Controller, error) {
	req.Category = strings.TrimSpace(req.Category)
	if req.Category == "" {
		return nil, fmt.Errorf("%w: category is required", ErrInvalidRequest)
	}
	if req.Timeframe == "" {
		req.Timeframe = domain.Window24h
	}

	var spamURLs []string
	if r.params.SpamStore != nil {
		urls, err := r.params.SpamStore.SpamURLs(ctx)
		if err != nil {
			return nil, fmt.Errorf("load spam flags: %w", err)
		}
		spamURLs = urls
	}

	id := uuid.NewString()
	var observer publish.Observer
	if r.params.Observe != nil {
		observer = r.params.Observe(id)
	}
	c := NewController(Params{
		ID:          id,
		Request:     req,
		Submitter:   r.params.Submitter,
		Observer:    observer,
		SpamStore:   r.params.SpamStore,
		Selector:    digest.NewSelector(r.params.Cutoffs, r.params.Clock.Now),
		SpamURLs:    spamURLs,
		Clock:       r.params.Clock,
		Metrics:     r.params.Metrics,
		Silence:     r.params.Silence,
		ChunkSize:   r.params.ChunkSize,
		Interval:    r.params.Interval,
		LogInterval: r.params.LogInterval,
		LogBurst:    r.params.LogBurst,
	})

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.New("registry is closed")
	}
	prev := r.jobs[r.byOwner[owner]]
	if prev != nil {
		delete(r.jobs, prev.ID())
	}
	r.jobs[id] = c
	r.byOwner[owner] = id
	r.mu.Unlock()

	if prev != nil {
		log.Printf("[INFO] discard job %s of %q, replaced by %s", prev.ID(), owner, id)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			prev.Close()
		}()
	}

	if err := c.Start(r.ctx); err != nil {
		return nil, fmt.Errorf("start job %s: %w", id, err)
	}
	return c, nil
}

// Get returns the job by id
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("get job %s: %w", id, ErrNotFound)
	}
	return c, nil
}

// Current returns the live job of the owner
func (r *Registry) Current(owner string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.jobs[r.byOwner[owner]]
	if !ok {
		return nil, fmt.Errorf("job of %q: %w", owner, ErrNotFound)
	}
	return c, nil
}

// Cancel cancels the job by id, the job stays available for reading
func (r *Registry) Cancel(id string) error {
	c, err := r.Get(id)
	if err != nil {
		return err
	}
	c.Cancel()
	return nil
}

// Stats returns number of jobs per state
func (r *Registry) Stats() map[State]int {
	r.mu.Lock()
	jobs := make([]*Controller, 0, len(r.jobs))
	for _, c := range r.jobs {
		jobs = append(jobs, c)
	}
	r.mu.Unlock()

	res := map[State]int{}
	for _, c := range jobs {
		res[c.State()]++
	}
	return res
}

// Close cancels all jobs and waits for them to finish
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	jobs := make([]*Controller, 0, len(r.jobs))
	for _, c := range r.jobs {
		jobs = append(jobs, c)
	}
	r.jobs = map[string]*Controller{}
	r.byOwner = map[string]string{}
	r.mu.Unlock()

	for _, c := range jobs {
		c.Close()
	}
	r.wg.Wait()
}
