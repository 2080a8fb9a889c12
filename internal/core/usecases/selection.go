package usecases

import "github.com/samirrijal/parkpass/internal/core/domain"

// SelectionController is the Browsing / Detail(parkID) state machine.
// Every transition bumps the generation; geometry fetched under an older
// generation is stale.
type SelectionController struct {
	state domain.SelectionState
}

// NewSelectionController starts in Browsing.
func NewSelectionController() *SelectionController {
	return &SelectionController{state: domain.SelectionState{Mode: domain.ModeBrowsing}}
}

// Select moves to Detail(parkID) and returns the new generation.
// Reselecting the current park still starts a new generation.
func (s *SelectionController) Select(parkID domain.ParkID) uint64 {
	id := parkID
	s.state = domain.SelectionState{
		Mode:       domain.ModeDetail,
		ParkID:     &id,
		Generation: s.state.Generation + 1,
	}
	return s.state.Generation
}

// Clear returns to Browsing. It reports false if already browsing.
func (s *SelectionController) Clear() bool {
	if s.state.Browsing() {
		return false
	}
	s.state = domain.SelectionState{Mode: domain.ModeBrowsing, Generation: s.state.Generation + 1}
	return true
}

// State returns a copy of the current state.
func (s *SelectionController) State() domain.SelectionState {
	st := s.state
	if st.ParkID != nil {
		id := *st.ParkID
		st.ParkID = &id
	}
	return st
}

// IsCurrent reports whether gen is still the live generation.
func (s *SelectionController) IsCurrent(gen uint64) bool {
	return s.state.Generation == gen
}
