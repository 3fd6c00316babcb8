// Package analytics records search and indexing activity. Events are
// aggregated in process and can be shipped to Kafka, where the analytics
// service aggregates them across searcher instances.
package analytics

import "time"

type EventType string

const (
	EventSearch EventType = "search"
	EventCommit EventType = "commit"
)

// Event is the envelope published on the analytics topic. Exactly one of
// Search and Commit is set, matching Type.
type Event struct {
	Type      EventType    `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Search    *SearchEvent `json:"search,omitempty"`
	Commit    *CommitEvent `json:"commit,omitempty"`
}

type SearchEvent struct {
	Query      string `json:"query"`
	Parsed     string `json:"parsed,omitempty"`
	Mode       string `json:"mode"`
	Generation uint64 `json:"generation"`
	TotalHits  int    `json:"total_hits"`
	Returned   int    `json:"returned"`
	LatencyMs  int64  `json:"latency_ms"`
	CacheHit   bool   `json:"cache_hit"`
	Failed     bool   `json:"failed,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

type CommitEvent struct {
	Generation uint64 `json:"generation"`
	Documents  int    `json:"documents"`
	Added      int    `json:"added"`
	Terms      int    `json:"terms"`
	DurationMs int64  `json:"duration_ms"`
}

// NewSearchEvent wraps e in an envelope stamped with the current time.
func NewSearchEvent(e SearchEvent) Event {
	return Event{Type: EventSearch, Timestamp: time.Now().UTC(), Search: &e}
}

// NewCommitEvent wraps e in an envelope stamped with the current time.
func NewCommitEvent(e CommitEvent) Event {
	return Event{Type: EventCommit, Timestamp: time.Now().UTC(), Commit: &e}
}

// Tracker accepts events. Implementations must not block the caller.
type Tracker interface {
	Track(Event)
}

type multiTracker []Tracker

func (m multiTracker) Track(e Event) {
	for _, t := range m {
		t.Track(e)
	}
}

// Multi fans every event out to all non-nil trackers.
func Multi(trackers ...Tracker) Tracker {
	var m multiTracker
	for _, t := range trackers {
		if t != nil {
			m = append(m, t)
		}
	}
	return m
}
