package usecases_test

import (
	"testing"

	"github.com/samirrijal/parkpass/internal/core/domain"
	"github.com/samirrijal/parkpass/internal/core/usecases"
)

func TestFeatureStore_PartialArrival(t *testing.T) {
	s := usecases.NewFeatureStore()
	s.Reset(7)
	s.Set(domain.CategoryPark, &domain.FeatureGeometry{ParkID: 7, Category: domain.CategoryPark})
	s.Set(domain.CategoryTrail, &domain.FeatureGeometry{ParkID: 7, Category: domain.CategoryTrail})

	loaded := s.Loaded()
	if len(loaded) != 2 || loaded[0] != domain.CategoryPark || loaded[1] != domain.CategoryTrail {
		t.Errorf("unexpected loaded categories %v", loaded)
	}
	if s.Get(domain.CategoryAmenity) != nil || s.Get(domain.CategoryFacility) != nil {
		t.Error("missing categories must read as not loaded")
	}
}

func TestFeatureStore_RejectsOtherPark(t *testing.T) {
	s := usecases.NewFeatureStore()
	if s.Set(domain.CategoryPark, &domain.FeatureGeometry{ParkID: 1}) {
		t.Error("unpinned store accepted geometry")
	}
	s.Reset(2)
	if s.Set(domain.CategoryPark, &domain.FeatureGeometry{ParkID: 1}) {
		t.Error("store accepted geometry for another park")
	}
}

func TestFeatureStore_ResetReplacesWholesale(t *testing.T) {
	s := usecases.NewFeatureStore()
	s.Reset(1)
	s.Set(domain.CategoryPark, &domain.FeatureGeometry{ParkID: 1})
	s.Reset(2)
	if len(s.Loaded()) != 0 {
		t.Error("reset kept old geometry")
	}
	if id, ok := s.ParkID(); !ok || id != 2 {
		t.Errorf("expected pinned park 2, got %v %v", id, ok)
	}
	s.Clear()
	if _, ok := s.ParkID(); ok {
		t.Error("clear left store pinned")
	}
}

func TestSelectionController_Transitions(t *testing.T) {
	s := usecases.NewSelectionController()
	if !s.State().Browsing() {
		t.Fatal("initial state must be browsing")
	}
	if s.Clear() {
		t.Error("clear from browsing should be a no-op")
	}

	g1 := s.Select(1)
	if id, ok := s.State().Selected(); !ok || id != 1 {
		t.Fatalf("expected Detail(1), got %+v", s.State())
	}
	g2 := s.Select(2)
	if s.IsCurrent(g1) || !s.IsCurrent(g2) {
		t.Error("generation not advanced on reselect")
	}
	if !s.Clear() || !s.State().Browsing() {
		t.Error("expected return to browsing")
	}
	if s.IsCurrent(g2) {
		t.Error("clear must invalidate the detail generation")
	}
}
