// Package stream turns the newline-delimited event stream of a generation job into typed events.
// Each line of the stream is one JSON object with a "type" discriminator. Lines may be split
// across chunks at arbitrary positions; malformed lines are dropped with a warning and never
// stop the stream.
package stream

import (
	"github.com/umputun/newsdigest/pkg/domain"
)

// EventType is the discriminator of a stream event
type EventType string

// event types emitted by generation producers
const (
	EventMeta            EventType = "meta"
	EventPartialArticles EventType = "partial_articles"
	EventPartialDigest   EventType = "partial_digest"
	EventPartialAnalysis EventType = "partial_analysis"
	EventLog             EventType = "log"
	EventPing            EventType = "ping"
	EventResult          EventType = "result"
	EventError           EventType = "error"
	EventDone            EventType = "done"
)

// Known reports whether the event type is one the merge engine understands
func (t EventType) Known() bool {
	switch t {
	case EventMeta, EventPartialArticles, EventPartialDigest, EventPartialAnalysis,
		EventLog, EventPing, EventResult, EventError, EventDone:
		return true
	}
	return false
}

// Event is a single decoded stream record. Only the fields relevant for Type are set.
type Event struct {
	Type EventType `json:"type"`

	// meta
	OwnerID       int64  `json:"owner_id,omitempty"`
	OwnerUsername string `json:"owner_username,omitempty"`
	OwnerVisible  bool   `json:"owner_is_visible,omitempty"`

	// partial_articles
	Articles []domain.Article `json:"articles,omitempty"`

	// partial_digest
	Digest string `json:"digest,omitempty"`

	// partial_analysis
	AnalysisSource []domain.AnalysisEntry `json:"analysis_source,omitempty"`
	AnalysisDigest []domain.AnalysisEntry `json:"analysis_digest,omitempty"`

	// log and error
	Message string `json:"message,omitempty"`

	// result, legacy one-shot delivery
	Data *Result `json:"data,omitempty"`
}

// Result is the payload of a legacy one-shot "result" event
type Result struct {
	Articles       []domain.Article       `json:"articles"`
	Digest         string                 `json:"digest"`
	AnalysisSource []domain.AnalysisEntry `json:"analysis_source"`
	AnalysisDigest []domain.AnalysisEntry `json:"analysis_digest"`
}

// Owner returns owner fields of a meta event
func (e Event) Owner() domain.Owner {
	return domain.Owner{ID: e.OwnerID, Username: e.OwnerUsername, Visible: e.OwnerVisible}
}

// Analysis returns analysis lists of a partial_analysis event
func (e Event) Analysis() domain.Analysis {
	return domain.Analysis{Source: e.AnalysisSource, Digest: e.AnalysisDigest}
}
