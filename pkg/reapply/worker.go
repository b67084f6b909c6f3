// Package reapply re-runs extraction with a corrected rule over articles already in a digest.
package reapply

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/umputun/newsdigest/pkg/digest"
	"github.com/umputun/newsdigest/pkg/domain"
	"github.com/umputun/newsdigest/pkg/metrics"
)

//go:generate moq -out mocks/tester.go -pkg mocks -skip-ensure -fmt goimports . Tester
//go:generate moq -out mocks/verifier.go -pkg mocks -skip-ensure -fmt goimports . Verifier
//go:generate moq -out mocks/rule_store.go -pkg mocks -skip-ensure -fmt goimports . RuleStore

// ErrNoOrigin is returned for a request without origin
var ErrNoOrigin = errors.New("origin is required")

// Tester runs an extraction rule against a single article
type Tester interface {
	TestExtraction(ctx context.Context, url string, rule domain.RuleConfig) (domain.ExtractionResult, error)
}

// Verifier judges whether an article title matches the topic of the job
type Verifier interface {
	VerifyArticle(ctx context.Context, job domain.JobRequest, url, title string) (domain.Assessment, error)
}

// RuleStore persists extraction rules per origin
type RuleStore interface {
	SaveRule(ctx context.Context, origin string, rule domain.RuleConfig) error
}

// Target is the digest a pass is applied to
type Target interface {
	ID() string
	Request() domain.JobRequest
	ArticlesByOrigin(origin string) []domain.Article
	ApplyCorrections(corrections []digest.Correction) []digest.Change
	UpdateVerdict(url, expectTitle string, v domain.Verdict) error
}

// Request describes one reapplication pass. TargetResult, if set, is the already known
// extraction result for TargetURL and is used as is instead of testing that article again.
type Request struct {
	Origin       string                   `json:"origin"`
	Rule         domain.RuleConfig        `json:"rule"`
	TargetURL    string                   `json:"target_url,omitempty"`
	TargetResult *domain.ExtractionResult `json:"target_result,omitempty"`
	Save         bool                     `json:"save"`
}

// Report summarizes a pass
type Report struct {
	Origin    string            `json:"origin"`
	Matched   int               `json:"matched"`
	Updated   []string          `json:"updated"`
	Moved     map[string]string `json:"moved,omitempty"`    // url -> new partition
	Failures  map[string]string `json:"failures,omitempty"` // url -> extraction error
	Reverify  int               `json:"reverify"`
	RuleSaved bool              `json:"rule_saved"`
}

// Params configures Worker
type Params struct {
	Tester        Tester
	Verifier      Verifier // optional, no re-verification without it
	Rules         RuleStore
	Metrics       *metrics.Metrics
	VerifyWorkers int           // max concurrent re-verifications, default 4
	VerifyTimeout time.Duration // per re-verification, default 1m
}

// Worker applies reapplication passes. Passes over the same target are serialized, passes
// over different targets run independently. Re-verifications triggered by changed titles
// run in background and write back through Target.UpdateVerdict.
type Worker struct {
	ctx           context.Context
	tester        Tester
	verifier      Verifier
	rules         RuleStore
	metrics       *metrics.Metrics
	verifyTimeout time.Duration

	locksMu  sync.Mutex
	passes   map[string]*passLock // target id -> lock, removed when unused
	group    *errgroup.Group
	dispatch sync.WaitGroup
}

type passLock struct {
	mu   sync.Mutex
	refs int
}

// New makes a Worker. ctx bounds background re-verifications, they are not tied to the
// request or the job which triggered them.
func New(ctx context.Context, p Params) *Worker {
	if p.VerifyWorkers <= 0 {
		p.VerifyWorkers = 4
	}
	if p.VerifyTimeout <= 0 {
		p.VerifyTimeout = time.Minute
	}
	g := &errgroup.Group{}
	g.SetLimit(p.VerifyWorkers)
	return &Worker{ctx: ctx, tester: p.Tester, verifier: p.Verifier, rules: p.Rules, metrics: p.Metrics,
		verifyTimeout: p.VerifyTimeout, group: g, passes: map[string]*passLock{}}
}

// Reapply runs one pass over all target articles of the request origin, from every partition.
// Articles are tested one by one, then all corrections are applied to the target at once.
// A failed extraction is recorded in the report and leaves the article as is.
func (w *Worker) Reapply(ctx context.Context, target Target, req Request) (Report, error) {
	origin := domain.NormalizeOrigin(req.Origin)
	if origin == "" {
		return Report{}, ErrNoOrigin
	}

	unlock := w.lockPass(target.ID())
	defer unlock()
	st := time.Now()

	articles := target.ArticlesByOrigin(origin)
	rep := Report{Origin: origin, Matched: len(articles), Updated: []string{}}
	corrections := make([]digest.Correction, 0, len(articles))
	for _, a := range articles {
		res, err := w.result(ctx, a.URL, req)
		if ctx.Err() != nil {
			w.metrics.Reapplied(false, time.Since(st))
			return rep, fmt.Errorf("reapply %s: %w", origin, ctx.Err())
		}
		if err == nil && res.Failed() {
			err = errors.New(res.Error)
		}
		if err != nil {
			if rep.Failures == nil {
				rep.Failures = map[string]string{}
			}
			rep.Failures[a.URL] = err.Error()
			log.Printf("[WARN] reapply %s, extraction failed for %s: %v", origin, a.URL, err)
			continue
		}
		corrections = append(corrections, digest.Correction{URL: a.URL, Title: res.Title, Date: res.Date})
	}

	changes := target.ApplyCorrections(corrections)
	for _, ch := range changes {
		rep.Updated = append(rep.Updated, ch.Article.URL)
		if ch.From != ch.To {
			if rep.Moved == nil {
				rep.Moved = map[string]string{}
			}
			rep.Moved[ch.Article.URL] = ch.To.String()
		}
		if ch.TitleChanged && w.verifier != nil {
			w.reverify(target, ch.Article.URL, ch.Article.Title)
			rep.Reverify++
		}
	}
	w.metrics.Reapplied(len(rep.Failures) == 0, time.Since(st))
	log.Printf("[INFO] reapply %s on job %s, matched=%d, updated=%d, moved=%d, failed=%d",
		origin, target.ID(), rep.Matched, len(rep.Updated), len(rep.Moved), len(rep.Failures))

	if req.Save && w.rules != nil {
		if err := w.rules.SaveRule(ctx, origin, req.Rule); err != nil {
			return rep, fmt.Errorf("save rule for %s: %w", origin, err)
		}
		rep.RuleSaved = true
	}
	return rep, nil
}

// lockPass takes the pass lock of the target and returns its release func
func (w *Worker) lockPass(id string) func() {
	w.locksMu.Lock()
	l, ok := w.passes[id]
	if !ok {
		l = &passLock{}
		w.passes[id] = l
	}
	l.refs++
	w.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		w.locksMu.Lock()
		defer w.locksMu.Unlock()
		l.refs--
		if l.refs == 0 {
			delete(w.passes, id)
		}
	}
}

// Wait blocks until all background re-verifications are finished
func (w *Worker) Wait() {
	w.dispatch.Wait()
	_ = w.group.Wait() // tasks never return errors, failures are logged
}

func (w *Worker) result(ctx context.Context, url string, req Request) (domain.ExtractionResult, error) {
	if req.TargetResult != nil && url == req.TargetURL {
		return *req.TargetResult, nil
	}
	res, err := w.tester.TestExtraction(ctx, url, req.Rule)
	w.metrics.Extracted(err == nil && !res.Failed())
	if err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("test extraction: %w", err)
	}
	return res, nil
}

// reverify schedules a background verdict refresh for an article whose title changed.
// Scheduling itself never blocks the caller, the worker limit applies to running tasks.
func (w *Worker) reverify(target Target, url, title string) {
	w.dispatch.Add(1)
	go func() {
		defer w.dispatch.Done()
		w.group.Go(func() error {
			ctx, cancel := context.WithTimeout(w.ctx, w.verifyTimeout)
			defer cancel()
			assessment, err := w.verifier.VerifyArticle(ctx, target.Request(), url, title)
			w.metrics.Verified(err == nil)
			if err != nil {
				log.Printf("[WARN] re-verification failed for %s: %v", url, err)
				return nil
			}
			if err := target.UpdateVerdict(url, title, domain.AssessedVerdict(assessment)); err != nil {
				log.Printf("[DEBUG] verdict for %s dropped: %v", url, err)
			}
			return nil
		})
	}()
}
