package domain

// SelectionMode tags the SelectionState variant.
type SelectionMode string

const (
	ModeBrowsing SelectionMode = "browsing"
	ModeDetail   SelectionMode = "detail"
)

// SelectionState is either Browsing or Detail(ParkID). Generation bumps on
// every transition and tags in-flight geometry fetches.
type SelectionState struct {
	Mode       SelectionMode `json:"mode"`
	ParkID     *ParkID       `json:"park_id,omitempty"`
	Generation uint64        `json:"generation"`
}

// Browsing reports whether no park is selected.
func (s SelectionState) Browsing() bool { return s.Mode != ModeDetail }

// Selected returns the selected park id, if any.
func (s SelectionState) Selected() (ParkID, bool) {
	if s.Mode != ModeDetail || s.ParkID == nil {
		return 0, false
	}
	return *s.ParkID, true
}
