package domain

import "time"

// TimeWindow is the requested publication window of a job, e.g. "24h" or "1week"
type TimeWindow string

// known time windows
const (
	Window24h    TimeWindow = "24h"
	Window3Days  TimeWindow = "3days"
	Window1Week  TimeWindow = "1week"
	Window1Month TimeWindow = "1month"
)

// JobRequest describes what a generation job should produce
type JobRequest struct {
	Category  string     `json:"category"`
	City      string     `json:"city,omitempty"`
	Timeframe TimeWindow `json:"timeframe"`
	SourceIDs []int64    `json:"outlet_ids"`
}

// Owner identifies who owns the digest, set by the producer's meta event
type Owner struct {
	ID       int64  `json:"owner_id"`
	Username string `json:"owner_username,omitempty"`
	Visible  bool   `json:"owner_is_visible"`
}

// Status is the terminal status of a digest aggregate
type Status string

// digest statuses
const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusAborted Status = "aborted"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status is final
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusAborted || s == StatusFailed
}

// Digest is a full, immutable snapshot of a digest aggregate handed to observers
type Digest struct {
	JobID     string     `json:"job_id"`
	Request   JobRequest `json:"request"`
	Owner     Owner      `json:"owner"`
	Status    Status     `json:"status"`
	Active    []Article  `json:"active"`
	Excluded  []Article  `json:"excluded"`
	Spam      []Article  `json:"spam"`
	Selected  []string   `json:"selected"`
	Narrative string     `json:"narrative"`
	Analysis  Analysis   `json:"analysis"`
	Warnings  []string   `json:"warnings,omitempty"`
	Error     string     `json:"error,omitempty"`
	Version   int64      `json:"version"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Find returns the article with the given url from any partition
func (d Digest) Find(url string) (Article, bool) {
	for _, part := range [][]Article{d.Active, d.Excluded, d.Spam} {
		for _, a := range part {
			if a.URL == url {
				return a, true
			}
		}
	}
	return Article{}, false
}

// Len returns the number of articles in all partitions
func (d Digest) Len() int {
	return len(d.Active) + len(d.Excluded) + len(d.Spam)
}
