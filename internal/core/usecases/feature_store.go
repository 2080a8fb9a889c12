package usecases

import "github.com/samirrijal/parkpass/internal/core/domain"

// FeatureStore holds the detail geometry of at most one park. Categories
// fill in independently; a missing category is simply not loaded yet.
type FeatureStore struct {
	parkID   *domain.ParkID
	features map[domain.Category]*domain.FeatureGeometry
}

// NewFeatureStore creates an empty store.
func NewFeatureStore() *FeatureStore {
	return &FeatureStore{features: make(map[domain.Category]*domain.FeatureGeometry, len(domain.Categories))}
}

// Reset drops everything and pins the store to parkID.
func (s *FeatureStore) Reset(parkID domain.ParkID) {
	id := parkID
	s.parkID = &id
	s.features = make(map[domain.Category]*domain.FeatureGeometry, len(domain.Categories))
}

// Clear empties the store and unpins it.
func (s *FeatureStore) Clear() {
	s.parkID = nil
	s.features = make(map[domain.Category]*domain.FeatureGeometry, len(domain.Categories))
}

// ParkID returns the park the store currently holds geometry for.
func (s *FeatureStore) ParkID() (domain.ParkID, bool) {
	if s.parkID == nil {
		return 0, false
	}
	return *s.parkID, true
}

// Set stores geometry for category. Geometry for a park other than the
// pinned one is ignored and Set reports false.
func (s *FeatureStore) Set(category domain.Category, fg *domain.FeatureGeometry) bool {
	if fg == nil || s.parkID == nil || fg.ParkID != *s.parkID {
		return false
	}
	s.features[category] = fg
	return true
}

// Get returns the geometry for category, or nil if not loaded.
func (s *FeatureStore) Get(category domain.Category) *domain.FeatureGeometry {
	return s.features[category]
}

// Loaded lists the categories present, in domain.Categories order.
func (s *FeatureStore) Loaded() []domain.Category {
	out := make([]domain.Category, 0, len(s.features))
	for _, c := range domain.Categories {
		if _, ok := s.features[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// All returns a copy of the category map.
func (s *FeatureStore) All() map[domain.Category]*domain.FeatureGeometry {
	out := make(map[domain.Category]*domain.FeatureGeometry, len(s.features))
	for c, fg := range s.features {
		out[c] = fg
	}
	return out
}
