package digest

import (
	"fmt"
	"strings"

	"github.com/umputun/newsdigest/pkg/domain"
	"github.com/umputun/newsdigest/pkg/stream"
)

// Effect tells the caller what kind of publish an applied event needs
type Effect int

// effects of applied events
const (
	EffectNone  Effect = iota // nothing observable changed
	EffectData                // merge-driven change, best-effort publish
	EffectLog                 // advisory text, published through the log channel
	EffectError               // upstream error recorded, must be published
	EffectDone                // producer finished, must be published
)

// Outcome describes the result of applying one event
type Outcome struct {
	Effect     Effect
	Added      int // new articles merged
	Duplicates int // re-delivered articles discarded
}

// Apply merges one stream event into the aggregate. Stream events are rejected with
// ErrTerminal once the aggregate is final.
func (g *Aggregate) Apply(ev stream.Event) (Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status.Terminal() {
		return Outcome{}, fmt.Errorf("apply %s: %w", ev.Type, ErrTerminal)
	}

	switch ev.Type {
	case stream.EventMeta:
		g.owner = ev.Owner()
		g.touch()
		return Outcome{Effect: EffectData}, nil

	case stream.EventPartialArticles:
		added, dups := g.mergeArticles(ev.Articles)
		if added > 0 {
			g.touch()
		}
		return Outcome{Effect: EffectData, Added: added, Duplicates: dups}, nil

	case stream.EventPartialDigest:
		g.narrative = ev.Digest
		g.touch()
		return Outcome{Effect: EffectData}, nil

	case stream.EventPartialAnalysis:
		g.analysis = ev.Analysis().Clone()
		g.touch()
		return Outcome{Effect: EffectData}, nil

	case stream.EventResult:
		if ev.Data == nil {
			return Outcome{}, fmt.Errorf("apply %s: missing data", ev.Type)
		}
		added, dups := g.replaceAll(*ev.Data)
		g.touch()
		return Outcome{Effect: EffectData, Added: added, Duplicates: dups}, nil

	case stream.EventError:
		msg := strings.TrimSpace(ev.Message)
		if msg == "" {
			msg = "upstream error"
		}
		g.warnings = append(g.warnings, msg)
		g.touch()
		return Outcome{Effect: EffectError}, nil

	case stream.EventDone:
		g.recompute()
		g.touch()
		return Outcome{Effect: EffectDone}, nil

	case stream.EventLog:
		return Outcome{Effect: EffectLog}, nil

	case stream.EventPing:
		return Outcome{Effect: EffectNone}, nil

	default:
		return Outcome{}, fmt.Errorf("apply %s: %w", ev.Type, stream.ErrUnknownType)
	}
}

// mergeArticles inserts articles not seen before. The first-seen copy of an url wins,
// re-delivered copies are discarded so user edits on the existing one survive.
// Must be called with lock held.
func (g *Aggregate) mergeArticles(batch []domain.Article) (added, duplicates int) {
	for _, a := range batch {
		if a.URL == "" {
			continue
		}
		if _, ok := g.entries[a.URL]; ok {
			duplicates++
			continue
		}
		e := &entry{article: a.Clone()}
		g.place(e)
		g.entries[a.URL] = e
		g.order = append(g.order, a.URL)
		added++
	}
	return added, duplicates
}

// replaceAll applies a legacy one-shot result. Articles, narrative and analysis are replaced,
// spam flags and manual overrides are kept and applied to the new articles.
// Must be called with lock held.
func (g *Aggregate) replaceAll(res stream.Result) (added, duplicates int) {
	g.entries = map[string]*entry{}
	g.order = nil
	added, duplicates = g.mergeArticles(res.Articles)
	g.narrative = res.Digest
	g.analysis = domain.Analysis{Source: res.AnalysisSource, Digest: res.AnalysisDigest}.Clone()
	g.recompute()
	return added, duplicates
}

// Recompute re-derives active/excluded membership of every article
func (g *Aggregate) Recompute() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recompute()
	g.touch()
}

// Correction is a re-derived title and/or date for one article. Empty fields mean "unchanged".
type Correction struct {
	URL   string
	Title string
	Date  string
}

// Change reports what a correction actually changed on an article
type Change struct {
	Article      domain.Article // article state after the correction
	TitleChanged bool
	DateChanged  bool
	From, To     Partition
}

// ApplyCorrections applies all corrections atomically, under a single lock and a single
// version bump. A changed title clears the verdict since it no longer matches the text;
// a changed date drops the explicit freshness flag so freshness is re-derived from the date.
// Corrections are allowed on a final aggregate, they are user-initiated.
func (g *Aggregate) ApplyCorrections(corrections []Correction) []Change {
	g.mu.Lock()
	defer g.mu.Unlock()

	var changes []Change
	for _, c := range corrections {
		e, ok := g.entries[c.URL]
		if !ok {
			continue
		}
		ch := Change{From: e.part}
		if title := strings.TrimSpace(c.Title); title != "" && title != e.article.Title {
			e.article.Title = title
			e.article.Verdict = domain.Verdict{}
			ch.TitleChanged = true
		}
		if date := strings.TrimSpace(c.Date); date != "" && date != e.article.DateStr {
			e.article.DateStr = date
			if e.article.Scores != nil {
				e.article.Scores.IsFresh = nil
			}
			ch.DateChanged = true
		}
		if !ch.TitleChanged && !ch.DateChanged {
			continue
		}
		g.place(e)
		ch.To = e.part
		ch.Article = e.article.Clone()
		changes = append(changes, ch)
	}

	if len(changes) > 0 {
		g.touch()
	}
	return changes
}

// UpdateVerdict writes back a verdict for the url and re-derives its partition.
// The write is skipped if the article's title is no longer expectTitle, the verdict
// was computed for a text that has since changed.
func (g *Aggregate) UpdateVerdict(url, expectTitle string, v domain.Verdict) (Partition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[url]
	if !ok {
		return PartitionNone, ErrNotFound
	}
	if e.article.Title != expectTitle {
		return e.part, fmt.Errorf("stale verdict for %s: title changed", url)
	}
	e.article.Verdict = v
	g.place(e)
	g.touch()
	return e.part, nil
}
