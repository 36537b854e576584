package loader

import "time"

type EventType string

const (
	EventEntrySynced   EventType = "entry.synced"
	EventEntryDeleted  EventType = "entry.deleted"
	EventSyncCompleted EventType = "sync.completed"
)

// Event is a notification emitted as the store changes.
type Event struct {
	Type  EventType  `json:"type"`
	ID    string     `json:"id,omitempty"`
	Path  string     `json:"path,omitempty"`
	At    time.Time  `json:"at"`
	Stats *PassStats `json:"stats,omitempty"`
}

// Sink receives loader events. Publish must not block.
type Sink interface {
	Publish(ev Event)
}

// PassStats summarizes one full sync pass.
type PassStats struct {
	Pass       string        `json:"pass"`
	Candidates int           `json:"candidates"`
	Synced     int           `json:"synced"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Deleted    int           `json:"deleted"`
	Bytes      int64         `json:"bytes"`
	Duration   time.Duration `json:"duration"`
}

// Status is a point-in-time snapshot of a loader.
type Status struct {
	Name       string     `json:"name"`
	Dir        string     `json:"dir"`
	Watching   bool       `json:"watching"`
	LastPass   *PassStats `json:"lastPass,omitempty"`
	LastPassAt time.Time  `json:"lastPassAt"`
}
