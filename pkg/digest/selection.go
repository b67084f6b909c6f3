package digest

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/umputun/newsdigest/pkg/domain"
)

// Cutoffs maps a time window to the maximum article age still considered fresh.
// Each cutoff is the window length plus a grace margin absorbing timezone skew and generation latency.
type Cutoffs map[domain.TimeWindow]time.Duration

// DefaultCutoffs returns empirically tuned cutoffs for the known time windows
func DefaultCutoffs() Cutoffs {
	return Cutoffs{
		domain.Window24h:    30 * time.Hour,
		domain.Window3Days:  72*time.Hour + 6*time.Hour,
		domain.Window1Week:  168*time.Hour + 12*time.Hour,
		domain.Window1Month: 720*time.Hour + 24*time.Hour,
	}
}

// Selector is the automatic-selection function. Given the same article state and the same
// clock reading it always returns the same answer and never mutates anything.
type Selector struct {
	cutoffs Cutoffs
	now     func() time.Time
}

// NewSelector makes a Selector. Missing windows in cutoffs are filled from DefaultCutoffs,
// nil now defaults to time.Now.
func NewSelector(cutoffs Cutoffs, now func() time.Time) *Selector {
	res := DefaultCutoffs()
	for w, d := range cutoffs {
		if d > 0 {
			res[w] = d
		}
	}
	if now == nil {
		now = time.Now
	}
	return &Selector{cutoffs: res, now: now}
}

// Cutoff returns the freshness cutoff for the window, unknown windows use the shortest one
func (s *Selector) Cutoff(w domain.TimeWindow) time.Duration {
	if d, ok := s.cutoffs[domain.TimeWindow(strings.ToLower(string(w)))]; ok {
		return d
	}
	return s.cutoffs[domain.Window24h]
}

// Fresh reports whether the article falls within the window plus grace margin.
// The explicit freshness flag wins, otherwise the published date string is parsed.
// Articles without a parsable date are not fresh.
func (s *Selector) Fresh(a domain.Article, w domain.TimeWindow) bool {
	if a.Scores != nil && a.Scores.IsFresh != nil {
		return *a.Scores.IsFresh
	}
	published, ok := ParseDate(a.DateStr)
	if !ok {
		return false
	}
	return s.now().Sub(published) <= s.Cutoff(w)
}

// Verified reports whether the article has a positive topic verdict
func (s *Selector) Verified(a domain.Article) bool {
	return a.Verdict.Verified()
}

// Include reports whether the article belongs to the active partition
func (s *Selector) Include(a domain.Article, w domain.TimeWindow) bool {
	return s.Fresh(a, w) && s.Verified(a)
}

// ParseDate parses a free-form published date. Dates without a zone are taken as UTC.
func ParseDate(str string) (time.Time, bool) {
	str = strings.TrimSpace(str)
	if str == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(str)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
