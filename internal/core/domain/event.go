package domain

import "time"

// SessionEvent is the broker message for one engine state change.
// Geometry payloads and topology blobs are left out; consumers fetch them
// from the API when they need them.
type SessionEvent struct {
	SessionID    string                  `json:"session_id"`
	Version      uint64                  `json:"version"`
	Ready        bool                    `json:"ready"`
	FiltersReady bool                    `json:"filters_ready"`
	Filter       *string                 `json:"filter,omitempty"`
	FilterKnown  bool                    `json:"filter_known"`
	VisibleIDs   []ParkID                `json:"visible_ids"`
	Selection    SelectionState          `json:"selection"`
	Features     []Category              `json:"features"`
	UserLocation *Coordinate             `json:"user_location,omitempty"`
	Sources      map[string]SourceStatus `json:"sources"`
	PublishedAt  time.Time               `json:"published_at"`
}

// NewSessionEvent flattens snap into an event.
func NewSessionEvent(sessionID string, snap Snapshot, now time.Time) SessionEvent {
	features := make([]Category, 0, len(snap.Features))
	for _, c := range Categories {
		if snap.Features[c] != nil {
			features = append(features, c)
		}
	}
	return SessionEvent{
		SessionID:    sessionID,
		Version:      snap.Version,
		Ready:        snap.Ready,
		FiltersReady: snap.FiltersReady,
		Filter:       snap.Filter,
		FilterKnown:  snap.FilterKnown,
		VisibleIDs:   snap.Visible.IDs,
		Selection:    snap.Selection,
		Features:     features,
		UserLocation: snap.UserLocation,
		Sources:      snap.Sources,
		PublishedAt:  now.UTC(),
	}
}
