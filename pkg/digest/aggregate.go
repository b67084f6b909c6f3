// Package digest holds the merged state of a single generation job and the merge engine
// applying stream events and user corrections to it.
//
// Every article lives in exactly one partition: active, excluded or spam. Partition
// membership is stored as a tag on the single per-url entry, so an url can never be in
// two partitions at once. Active vs excluded is derived by the Selector unless the user
// overrode the selection for that url. Spam comes from reported spam flags or from the
// producer's is_spam mark on the article.
package digest

import (
	"errors"
	"sync"
	"time"

	"github.com/umputun/newsdigest/pkg/domain"
)

// errors returned by aggregate operations
var (
	ErrTerminal = errors.New("digest is final")
	ErrNotFound = errors.New("article not found")
	ErrSpam     = errors.New("article is reported as spam")
)

// Partition is one of the disjoint article subsets of an aggregate
type Partition int

// partitions
const (
	PartitionNone Partition = iota
	PartitionActive
	PartitionExcluded
	PartitionSpam
)

func (p Partition) String() string {
	switch p {
	case PartitionActive:
		return "active"
	case PartitionExcluded:
		return "excluded"
	case PartitionSpam:
		return "spam"
	default:
		return "none"
	}
}

type entry struct {
	article domain.Article
	part    Partition
}

// Aggregate is the mutable merged state of one generation job. All methods are safe
// for concurrent use; a single mutex is the exclusion point between the stream reader,
// reapplication passes and background verdict write-backs.
type Aggregate struct {
	mu sync.Mutex

	jobID    string
	request  domain.JobRequest
	selector *Selector

	owner     domain.Owner
	entries   map[string]*entry
	order     []string // urls in first-seen order
	narrative string
	analysis  domain.Analysis
	warnings  []string
	errMsg    string
	status    domain.Status

	spamFlags map[string]bool
	overrides map[string]bool // url -> manually selected

	version   int64
	updatedAt time.Time
}

// New makes an empty running aggregate. spamURLs are urls already reported as spam,
// articles with those urls go straight to the spam partition when they arrive.
func New(jobID string, req domain.JobRequest, selector *Selector, spamURLs []string) *Aggregate {
	if selector == nil {
		selector = NewSelector(nil, nil)
	}
	res := &Aggregate{
		jobID:     jobID,
		request:   req,
		selector:  selector,
		entries:   map[string]*entry{},
		status:    domain.StatusRunning,
		spamFlags: map[string]bool{},
		overrides: map[string]bool{},
	}
	for _, u := range spamURLs {
		res.spamFlags[u] = true
	}
	res.updatedAt = selector.now()
	return res
}

// Status returns current status
func (g *Aggregate) Status() domain.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Finish freezes the aggregate with a terminal status. Returns false if it was already final.
// errMsg is kept for the failed status only, upstream error events stay in warnings.
func (g *Aggregate) Finish(status domain.Status, errMsg string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status.Terminal() || !status.Terminal() {
		return false
	}
	g.status = status
	if status == domain.StatusFailed {
		g.errMsg = errMsg
	}
	g.touch()
	return true
}

// Snapshot returns a deep copy of the current state
func (g *Aggregate) Snapshot() domain.Digest {
	g.mu.Lock()
	defer g.mu.Unlock()

	res := domain.Digest{
		JobID:     g.jobID,
		Request:   g.request,
		Owner:     g.owner,
		Status:    g.status,
		Active:    []domain.Article{},
		Excluded:  []domain.Article{},
		Spam:      []domain.Article{},
		Selected:  []string{},
		Narrative: g.narrative,
		Analysis:  g.analysis.Clone(),
		Error:     g.errMsg,
		Version:   g.version,
		UpdatedAt: g.updatedAt,
	}
	if len(g.warnings) > 0 {
		res.Warnings = append([]string(nil), g.warnings...)
	}

	for _, u := range g.order {
		e := g.entries[u]
		switch e.part {
		case PartitionActive:
			res.Active = append(res.Active, e.article.Clone())
			res.Selected = append(res.Selected, u)
		case PartitionExcluded:
			res.Excluded = append(res.Excluded, e.article.Clone())
		case PartitionSpam:
			res.Spam = append(res.Spam, e.article.Clone())
		}
	}
	return res
}

// Lookup returns a copy of the article and its partition
func (g *Aggregate) Lookup(url string) (domain.Article, Partition, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[url]
	if !ok {
		return domain.Article{}, PartitionNone, false
	}
	return e.article.Clone(), e.part, true
}

// ArticlesByOrigin returns copies of all articles, from every partition, whose origin matches
func (g *Aggregate) ArticlesByOrigin(origin string) []domain.Article {
	g.mu.Lock()
	defer g.mu.Unlock()
	var res []domain.Article
	for _, u := range g.order {
		if domain.Origin(u) == origin {
			res = append(res, g.entries[u].article.Clone())
		}
	}
	return res
}

// Selection returns the selection set, urls of the active partition in first-seen order
func (g *Aggregate) Selection() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	res := []string{}
	for _, u := range g.order {
		if g.entries[u].part == PartitionActive {
			res = append(res, u)
		}
	}
	return res
}

// SetSelected records a manual selection override and moves the article between active
// and excluded. The override supersedes the automatic selection for this url.
func (g *Aggregate) SetSelected(url string, selected bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[url]
	if !ok {
		return ErrNotFound
	}
	if e.part == PartitionSpam {
		return ErrSpam
	}
	g.overrides[url] = selected
	g.place(e)
	g.touch()
	return nil
}

// ResetSelection drops all manual overrides and re-derives active/excluded membership
func (g *Aggregate) ResetSelection() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.overrides = map[string]bool{}
	g.recompute()
	g.touch()
}

// MarkSpam flags the url as spam and moves the article, if present, to the spam partition.
// Returns false if the url is not (yet) part of the aggregate, the flag is kept for later arrivals.
func (g *Aggregate) MarkSpam(url string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.spamFlags[url] = true
	e, ok := g.entries[url]
	if !ok {
		return false
	}
	g.place(e)
	g.touch()
	return true
}

// UnmarkSpam removes the spam flag, including one set by the producer, and returns the article
// to its derived partition
func (g *Aggregate) UnmarkSpam(url string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.spamFlags, url)
	e, ok := g.entries[url]
	if !ok {
		return false
	}
	e.article.IsSpam = false
	g.place(e)
	g.touch()
	return true
}

// place puts the entry into the partition it belongs to. Must be called with lock held.
func (g *Aggregate) place(e *entry) {
	url := e.article.URL
	switch {
	case g.spamFlags[url] || e.article.IsSpam:
		e.article.IsSpam = true
		e.part = PartitionSpam
	case g.hasOverride(url):
		if g.overrides[url] {
			e.part = PartitionActive
		} else {
			e.part = PartitionExcluded
		}
	case g.selector.Include(e.article, g.request.Timeframe):
		e.part = PartitionActive
	default:
		e.part = PartitionExcluded
	}
}

func (g *Aggregate) hasOverride(url string) bool {
	_, ok := g.overrides[url]
	return ok
}

// recompute re-derives the partition of every entry. Must be called with lock held.
func (g *Aggregate) recompute() {
	for _, u := range g.order {
		g.place(g.entries[u])
	}
}

func (g *Aggregate) touch() {
	g.version++
	g.updatedAt = g.selector.now()
}
