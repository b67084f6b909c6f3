package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// VerdictKind enumerates the shapes of an AI verification verdict
type VerdictKind int

const (
	// VerdictNone means the article was never verified, or the verdict went stale
	VerdictNone VerdictKind = iota
	// VerdictTagged is a simple string tag, only "VERIFIED" counts as a positive judgment
	VerdictTagged
	// VerdictAssessed is a structured judgment with confidence and reasoning
	VerdictAssessed
)

// VerifiedTag is the only tag value treated as a positive verdict
const VerifiedTag = "VERIFIED"

// Verdict is the AI topic-relevance judgment attached to an article.
// On the wire it is either absent, a string tag or an object.
type Verdict struct {
	Kind       VerdictKind
	Tag        string
	Assessment Assessment
}

// Assessment is a structured topic judgment returned by the verifier
type Assessment struct {
	IsTopicMatch bool    `json:"is_topic_match"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

// TaggedVerdict makes a verdict of VerdictTagged kind
func TaggedVerdict(tag string) Verdict {
	return Verdict{Kind: VerdictTagged, Tag: tag}
}

// AssessedVerdict makes a verdict of VerdictAssessed kind
func AssessedVerdict(a Assessment) Verdict {
	return Verdict{Kind: VerdictAssessed, Assessment: a}
}

// Verified reports whether the verdict is a positive topic judgment.
// A structured verdict is trusted exactly, a tag must be "VERIFIED".
func (v Verdict) Verified() bool {
	switch v.Kind {
	case VerdictAssessed:
		return v.Assessment.IsTopicMatch
	case VerdictTagged:
		return strings.EqualFold(strings.TrimSpace(v.Tag), VerifiedTag)
	case VerdictNone:
		return false
	default:
		return false
	}
}

// IsZero reports whether the verdict is absent
func (v Verdict) IsZero() bool {
	return v.Kind == VerdictNone
}

// MarshalJSON writes null, a string tag or an assessment object
func (v Verdict) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case VerdictTagged:
		return json.Marshal(v.Tag)
	case VerdictAssessed:
		return json.Marshal(v.Assessment)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, a string tag or an assessment object
func (v *Verdict) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Verdict{}
		return nil
	}

	switch data[0] {
	case '"':
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return fmt.Errorf("parse verdict tag: %w", err)
		}
		if tag == "" {
			*v = Verdict{}
			return nil
		}
		*v = TaggedVerdict(tag)
		return nil
	case '{':
		var a Assessment
		if err := json.Unmarshal(data, &a); err != nil {
			return fmt.Errorf("parse verdict assessment: %w", err)
		}
		*v = AssessedVerdict(a)
		return nil
	case 't', 'f':
		// some producers send a bare boolean, treat it as an assessment without reasoning
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("parse verdict flag: %w", err)
		}
		*v = AssessedVerdict(Assessment{IsTopicMatch: b})
		return nil
	default:
		return fmt.Errorf("unsupported verdict value %s", string(data))
	}
}
