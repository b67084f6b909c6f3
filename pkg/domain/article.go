package domain

import (
	"net/url"
	"strings"
)

// Article represents a single news article discovered by a generation job.
// URL is the identity key, compared by exact value.
type Article struct {
	URL             string  `json:"url"`
	Title           string  `json:"title"`
	Source          string  `json:"source"`
	DateStr         string  `json:"date_str,omitempty"`
	RelevanceScore  float64 `json:"relevance_score"`
	Scores          *Scores `json:"scores,omitempty"`
	Verdict         Verdict `json:"ai_verdict,omitzero"`
	TranslatedTitle string  `json:"translated_title,omitempty"`
	ImageURL        string  `json:"image_url,omitempty"`
	IsSpam          bool    `json:"is_spam,omitempty"` // soft-blocked by the producer or reported by the user
}

// Scores is the per-criterion breakdown of an article's relevance score
type Scores struct {
	Topic   float64 `json:"topic"`
	Date    float64 `json:"date"`
	Geo     float64 `json:"geo,omitempty"`
	IsFresh *bool   `json:"is_fresh,omitempty"`
}

// Origin returns the origin of the article, see Origin
func (a Article) Origin() string {
	return Origin(a.URL)
}

// Clone returns a deep copy of the article
func (a Article) Clone() Article {
	res := a
	if a.Scores != nil {
		s := *a.Scores
		if a.Scores.IsFresh != nil {
			fresh := *a.Scores.IsFresh
			s.IsFresh = &fresh
		}
		res.Scores = &s
	}
	return res
}

// Origin returns lower-cased host of the url without the leading "www.".
// Empty string returned for urls without a host.
func Origin(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// NormalizeOrigin accepts either a bare host or a full url and returns its origin
func NormalizeOrigin(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "://") {
		s = "//" + s
	}
	return Origin(s)
}

// AnalysisEntry is a named, scored and sentiment-tagged entity referencing supporting articles
type AnalysisEntry struct {
	Word       string   `json:"word"`
	Importance int      `json:"importance"`
	Type       string   `json:"type,omitempty"`
	Sentiment  string   `json:"sentiment,omitempty"`
	SourceURLs []string `json:"source_urls,omitempty"`
}

// Analysis holds both analysis lists produced for a digest.
// Source analysis is built from the articles, digest analysis from the narrative.
type Analysis struct {
	Source []AnalysisEntry `json:"analysis_source"`
	Digest []AnalysisEntry `json:"analysis_digest"`
}

// Clone returns a deep copy of the analysis
func (a Analysis) Clone() Analysis {
	return Analysis{Source: cloneEntries(a.Source), Digest: cloneEntries(a.Digest)}
}

func cloneEntries(entries []AnalysisEntry) []AnalysisEntry {
	if entries == nil {
		return nil
	}
	res := make([]AnalysisEntry, len(entries))
	for i, e := range entries {
		res[i] = e
		if e.SourceURLs != nil {
			res[i].SourceURLs = append([]string(nil), e.SourceURLs...)
		}
	}
	return res
}
