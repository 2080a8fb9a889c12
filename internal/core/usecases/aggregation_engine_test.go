package usecases_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/parkpass/internal/core/domain"
	"github.com/samirrijal/parkpass/internal/core/ports"
	"github.com/samirrijal/parkpass/internal/core/usecases"
)

// --- Mock ParkSource ---

type featureCall struct {
	parkID   domain.ParkID
	category domain.Category
}

type mockSource struct {
	parksFn      func(ctx context.Context) ([]domain.Park, error)
	parksTopoFn  func(ctx context.Context) (domain.TopologyBlob, error)
	trailsTopoFn func(ctx context.Context) (domain.TopologyBlob, error)
	lookupFn     func(ctx context.Context, kind domain.LookupKind) (domain.LookupTable, error)
	featureFn    func(ctx context.Context, id domain.ParkID, cat domain.Category) (*domain.FeatureGeometry, error)

	mu    sync.Mutex
	calls []featureCall
}

func (m *mockSource) FetchAllParks(ctx context.Context) ([]domain.Park, error) {
	if m.parksFn != nil {
		return m.parksFn(ctx)
	}
	return nil, nil
}

func (m *mockSource) FetchAllParksTopology(ctx context.Context) (domain.TopologyBlob, error) {
	if m.parksTopoFn != nil {
		return m.parksTopoFn(ctx)
	}
	return domain.TopologyBlob(`{"type":"Topology"}`), nil
}

func (m *mockSource) FetchAllTrailsTopology(ctx context.Context) (domain.TopologyBlob, error) {
	if m.trailsTopoFn != nil {
		return m.trailsTopoFn(ctx)
	}
	return domain.TopologyBlob(`{"type":"Topology"}`), nil
}

func (m *mockSource) FetchLookup(ctx context.Context, kind domain.LookupKind) (domain.LookupTable, error) {
	if m.lookupFn != nil {
		return m.lookupFn(ctx, kind)
	}
	return domain.LookupTable{}, nil
}

func (m *mockSource) FetchFeatureGeometry(ctx context.Context, id domain.ParkID, cat domain.Category) (*domain.FeatureGeometry, error) {
	m.mu.Lock()
	m.calls = append(m.calls, featureCall{parkID: id, category: cat})
	m.mu.Unlock()
	if m.featureFn != nil {
		return m.featureFn(ctx, id, cat)
	}
	return &domain.FeatureGeometry{ParkID: id, Category: cat, Payload: []byte(`{"type":"FeatureCollection","features":[]}`)}, nil
}

func (m *mockSource) featureCalls() []featureCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]featureCall(nil), m.calls...)
}

type mockLocator struct {
	fn func(ctx context.Context) (domain.Coordinate, error)
}

func (m *mockLocator) ResolveUserLocation(ctx context.Context) (domain.Coordinate, error) {
	return m.fn(ctx)
}

func fixedLocator(lat, lng float64) *mockLocator {
	return &mockLocator{fn: func(ctx context.Context) (domain.Coordinate, error) {
		return domain.NewCoordinate(lat, lng), nil
	}}
}

// --- Helpers ---

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newEngine(t *testing.T, src *mockSource, loc *mockLocator) *usecases.AggregationEngine {
	t.Helper()
	var locator ports.LocationResolver
	if loc != nil {
		locator = loc
	}
	e := usecases.NewAggregationEngine(src, locator, usecases.WithLogger(quietLogger))
	t.Cleanup(e.Close)
	return e
}

func startAndWait(t *testing.T, e *usecases.AggregationEngine) {
	t.Helper()
	e.Start(context.Background())
	e.Wait()
}

func onePark() []domain.Park {
	return []domain.Park{{ID: 1, Name: "A", Center: domain.NewCoordinate(40, -70)}}
}

func catalogSource(parks []domain.Park, amenity, facility string) *mockSource {
	return &mockSource{
		parksFn: func(ctx context.Context) ([]domain.Park, error) { return parks, nil },
		lookupFn: func(ctx context.Context, kind domain.LookupKind) (domain.LookupTable, error) {
			raw := amenity
			if kind == domain.LookupFacility {
				raw = facility
			}
			var table domain.LookupTable
			if err := table.UnmarshalJSON([]byte(raw)); err != nil {
				return nil, err
			}
			return table, nil
		},
	}
}

func idsEqual(a []domain.ParkID, b ...domain.ParkID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --- Tests ---

func TestEngine_Scenario1_FilterMatchesStringIDs(t *testing.T) {
	e := newEngine(t, catalogSource(onePark(), `{"restroom":["1"]}`, `{}`), nil)
	startAndWait(t, e)

	vs := e.ApplyFilter("restroom")
	if !idsEqual(vs.IDs, 1) {
		t.Fatalf("expected visible ids [1], got %v", vs.IDs)
	}
	if !idsEqual(e.VisibleParkIDs(), 1) {
		t.Errorf("expected engine visible ids [1], got %v", e.VisibleParkIDs())
	}
}

func TestEngine_Scenario2_AbsentTagIsEmpty(t *testing.T) {
	e := newEngine(t, catalogSource(onePark(), `{}`, `{}`), nil)
	startAndWait(t, e)

	vs := e.ApplyFilter("restroom")
	if len(vs.IDs) != 0 || len(e.VisibleParks()) != 0 {
		t.Fatalf("expected no visible parks, got %v", vs.IDs)
	}
}

func TestEngine_SnapshotMarksKnownFilter(t *testing.T) {
	e := newEngine(t, catalogSource(onePark(), `{"restroom":["1"]}`, `{}`), nil)
	startAndWait(t, e)

	e.ApplyFilter("restroom")
	if snap := e.Snapshot(); !snap.FilterKnown {
		t.Error("expected restroom to be a known tag")
	}
	e.ApplyFilter("x-unlisted")
	if snap := e.Snapshot(); snap.FilterKnown {
		t.Error("expected unlisted tag to be unknown")
	}
	e.ClearFilter()
	if snap := e.Snapshot(); snap.FilterKnown || snap.Filter != nil {
		t.Errorf("expected no filter, got %+v", snap.Filter)
	}
}

func TestEngine_Scenario3_DistanceAfterLocation(t *testing.T) {
	e := newEngine(t, catalogSource(onePark(), `{}`, `{}`), fixedLocator(41, -70))
	startAndWait(t, e)

	p, ok := e.FindPark(1)
	if !ok || p.Distance == nil {
		t.Fatalf("expected park 1 with distance, got %+v", p)
	}
	if math.Abs(*p.Distance-69) > 1 {
		t.Errorf("expected ~69 miles, got %f", *p.Distance)
	}
	visible := e.VisibleParks()
	if len(visible) != 1 || visible[0].Distance == nil {
		t.Error("visible set was not re-derived with distances")
	}
	if loc, ok := e.UserLocation(); !ok || loc != domain.NewCoordinate(41, -70) {
		t.Errorf("unexpected user location %v %v", loc, ok)
	}
}

func TestEngine_Scenario4_SelectIssuesFourFetches(t *testing.T) {
	src := catalogSource(onePark(), `{}`, `{}`)
	e := newEngine(t, src, nil)
	startAndWait(t, e)

	// Filter park 1 out; selection is independent of the filter.
	e.ApplyFilter("restroom")

	if err := e.SelectParkWithID(1); err != nil {
		t.Fatalf("select: %v", err)
	}
	e.Wait()

	if id, ok := e.Selection().Selected(); !ok || id != 1 {
		t.Fatalf("expected Detail(1), got %+v", e.Selection())
	}
	calls := src.featureCalls()
	if len(calls) != 4 {
		t.Fatalf("expected 4 geometry fetches, got %d", len(calls))
	}
	seen := map[domain.Category]bool{}
	for _, c := range calls {
		if c.parkID != 1 {
			t.Errorf("fetch keyed to park %v", c.parkID)
		}
		seen[c.category] = true
	}
	for _, cat := range domain.Categories {
		if !seen[cat] {
			t.Errorf("no fetch for %s", cat)
		}
		if e.FeatureGeometry(cat) == nil {
			t.Errorf("category %s not stored", cat)
		}
	}
}

func TestEngine_SelectWithStringID(t *testing.T) {
	e := newEngine(t, catalogSource(onePark(), `{}`, `{}`), nil)
	startAndWait(t, e)

	if err := e.SelectParkWithID("1"); err != nil {
		t.Fatalf("select with string id: %v", err)
	}
	e.Wait()
	snap := e.Snapshot()
	if snap.SelectedPark == nil || snap.SelectedPark.Name != "A" {
		t.Errorf("expected selected park A, got %+v", snap.SelectedPark)
	}
}

func TestEngine_SelectUnknownPark(t *testing.T) {
	e := newEngine(t, catalogSource(onePark(), `{}`, `{}`), nil)
	startAndWait(t, e)

	err := e.SelectParkWithID(99)
	if !errors.Is(err, domain.ErrParkNotFound) {
		t.Fatalf("expected ErrParkNotFound, got %v", err)
	}
	if !e.Selection().Browsing() {
		t.Error("failed selection changed state")
	}
	if err := e.SelectParkWithID("abc"); !errors.Is(err, domain.ErrInvalidParkID) {
		t.Errorf("expected ErrInvalidParkID, got %v", err)
	}
}

func TestEngine_FilterIsSubsetAndIdempotent(t *testing.T) {
	parks := []domain.Park{
		{ID: 1, Name: "A", Center: domain.NewCoordinate(40, -70)},
		{ID: 2, Name: "B", Center: domain.NewCoordinate(41, -70)},
		{ID: 3, Name: "C", Center: domain.NewCoordinate(42, -70)},
	}
	e := newEngine(t, catalogSource(parks, `{"restroom":["3","1","77"]}`, `{"pool":[2]}`), nil)
	startAndWait(t, e)

	first := e.ApplyFilter("restroom")
	second := e.ApplyFilter("restroom")
	if !idsEqual(first.IDs, 1, 3) {
		t.Fatalf("expected [1 3] in catalog order, got %v", first.IDs)
	}
	if !idsEqual(second.IDs, first.IDs...) {
		t.Errorf("filter not idempotent: %v vs %v", first.IDs, second.IDs)
	}
}

func TestEngine_FiltersAreNotCumulative(t *testing.T) {
	parks := []domain.Park{
		{ID: 1, Name: "A", Center: domain.NewCoordinate(40, -70)},
		{ID: 2, Name: "B", Center: domain.NewCoordinate(41, -70)},
	}
	e := newEngine(t, catalogSource(parks, `{"restroom":[1]}`, `{"pool":["2"]}`), nil)
	startAndWait(t, e)

	e.ApplyFilter("restroom")
	vs := e.ApplyFilter("pool")
	if !idsEqual(vs.IDs, 2) {
		t.Errorf("expected [2] from full catalog, got %v", vs.IDs)
	}
	vs = e.ClearFilter()
	if !idsEqual(vs.IDs, 1, 2) {
		t.Errorf("expected full catalog after clear, got %v", vs.IDs)
	}
}

func TestEngine_FilterBeforeLookupsLand(t *testing.T) {
	release := make(chan struct{})
	src := catalogSource(onePark(), `{"restroom":[1]}`, `{}`)
	inner := src.lookupFn
	src.lookupFn = func(ctx context.Context, kind domain.LookupKind) (domain.LookupTable, error) {
		<-release
		return inner(ctx, kind)
	}
	e := newEngine(t, src, nil)
	e.Start(context.Background())

	// parks may or may not have landed; either way nothing matches yet
	if vs := e.ApplyFilter("restroom"); len(vs.IDs) != 0 {
		t.Fatalf("expected empty set before lookups, got %v", vs.IDs)
	}
	close(release)
	e.Wait()

	if !idsEqual(e.VisibleParkIDs(), 1) {
		t.Errorf("active filter not re-derived after lookups landed, got %v", e.VisibleParkIDs())
	}
}

func TestEngine_LocationBeforeParks(t *testing.T) {
	release := make(chan struct{})
	src := catalogSource(onePark(), `{}`, `{}`)
	src.parksFn = func(ctx context.Context) ([]domain.Park, error) {
		<-release
		return onePark(), nil
	}
	e := newEngine(t, src, fixedLocator(41, -70))
	e.Start(context.Background())

	for {
		if _, ok := e.UserLocation(); ok {
			break
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	e.Wait()

	p, ok := e.FindPark(1)
	if !ok || p.Distance == nil {
		t.Fatal("park loaded after location was not annotated")
	}
}

func TestEngine_ExplicitLocationBeatsLateResolver(t *testing.T) {
	release := make(chan struct{})
	loc := &mockLocator{fn: func(ctx context.Context) (domain.Coordinate, error) {
		<-release
		return domain.NewCoordinate(10, 10), nil
	}}
	e := newEngine(t, catalogSource(onePark(), `{}`, `{}`), loc)
	e.Start(context.Background())

	want := domain.NewCoordinate(41, -70)
	e.SetUserLocation(want)
	close(release)
	e.Wait()

	got, ok := e.UserLocation()
	if !ok || got != want {
		t.Fatalf("expected explicit location %v to survive, got %v", want, got)
	}
	p, _ := e.FindPark(1)
	if p.Distance == nil || math.Abs(*p.Distance-69) > 1 {
		t.Errorf("distance should be from the explicit location, got %v", p.Distance)
	}
}

func TestEngine_LocationFailureIsNotFatal(t *testing.T) {
	loc := &mockLocator{fn: func(ctx context.Context) (domain.Coordinate, error) {
		return domain.Coordinate{}, errors.New("permission denied")
	}}
	e := newEngine(t, catalogSource(onePark(), `{}`, `{}`), loc)
	startAndWait(t, e)

	snap := e.Snapshot()
	if snap.Sources[domain.SourceLocation] != domain.StatusError {
		t.Errorf("expected location error status, got %q", snap.Sources[domain.SourceLocation])
	}
	if snap.UserLocation != nil {
		t.Error("expected no user location")
	}
	if !snap.Ready || len(snap.Visible.IDs) != 1 {
		t.Errorf("rest of the engine should be ready, got %+v", snap)
	}
	p, _ := e.FindPark(1)
	if p.Distance != nil {
		t.Error("distance set without a location")
	}
}

func TestEngine_FetchFailureLeavesSlotUnloaded(t *testing.T) {
	src := catalogSource(onePark(), `{}`, `{}`)
	src.trailsTopoFn = func(ctx context.Context) (domain.TopologyBlob, error) {
		return nil, errors.New("503")
	}
	e := newEngine(t, src, nil)
	startAndWait(t, e)

	if e.Ready() {
		t.Error("engine ready without trails topology")
	}
	topo := e.Topology()
	if topo.Parks == nil || topo.Trails != nil {
		t.Errorf("unexpected topology slots %+v", topo)
	}
	if e.Snapshot().Sources[domain.SourceTrailsTopology] != domain.StatusError {
		t.Error("expected trails topology error status")
	}
}

func TestEngine_PartialGeometryArrival(t *testing.T) {
	src := catalogSource(onePark(), `{}`, `{}`)
	src.featureFn = func(ctx context.Context, id domain.ParkID, cat domain.Category) (*domain.FeatureGeometry, error) {
		if cat == domain.CategoryAmenity || cat == domain.CategoryFacility {
			return nil, errors.New("timeout")
		}
		return &domain.FeatureGeometry{ParkID: id, Category: cat}, nil
	}
	e := newEngine(t, src, nil)
	startAndWait(t, e)

	if err := e.SelectParkWithID(1); err != nil {
		t.Fatal(err)
	}
	e.Wait()

	snap := e.Snapshot()
	if len(snap.Features) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(snap.Features))
	}
	if snap.Features[domain.CategoryPark] == nil || snap.Features[domain.CategoryTrail] == nil {
		t.Error("expected park and trail geometry")
	}
	if e.FeatureGeometry(domain.CategoryAmenity) != nil {
		t.Error("failed category should be empty")
	}
}

func TestEngine_StaleGeometryDiscarded(t *testing.T) {
	parks := []domain.Park{
		{ID: 1, Name: "A", Center: domain.NewCoordinate(40, -70)},
		{ID: 2, Name: "B", Center: domain.NewCoordinate(41, -70)},
	}
	release := make(chan struct{})
	src := catalogSource(parks, `{}`, `{}`)
	src.featureFn = func(ctx context.Context, id domain.ParkID, cat domain.Category) (*domain.FeatureGeometry, error) {
		if id == 1 {
			<-release
		}
		return &domain.FeatureGeometry{ParkID: id, Category: cat}, nil
	}
	e := newEngine(t, src, nil)
	startAndWait(t, e)

	if err := e.SelectParkWithID(1); err != nil {
		t.Fatal(err)
	}
	if err := e.SelectParkWithID(2); err != nil {
		t.Fatal(err)
	}
	close(release)
	e.Wait()

	for _, cat := range domain.Categories {
		fg := e.FeatureGeometry(cat)
		if fg == nil || fg.ParkID != 2 {
			t.Errorf("category %s: expected park 2 geometry, got %+v", cat, fg)
		}
	}
}

func TestEngine_ReturnToBrowsing(t *testing.T) {
	e := newEngine(t, catalogSource(onePark(), `{}`, `{}`), nil)
	startAndWait(t, e)

	if err := e.SelectParkWithID(1); err != nil {
		t.Fatal(err)
	}
	e.Wait()
	e.ReturnToBrowsing()

	snap := e.Snapshot()
	if !snap.Selection.Browsing() || snap.SelectedPark != nil || len(snap.Features) != 0 {
		t.Errorf("expected clean browsing state, got %+v", snap.Selection)
	}
}

func TestEngine_ObserversSeeIncreasingVersions(t *testing.T) {
	e := newEngine(t, catalogSource(onePark(), `{"restroom":[1]}`, `{}`), fixedLocator(41, -70))

	var mu sync.Mutex
	var versions []uint64
	unsubscribe := e.Subscribe(func(s domain.Snapshot) {
		mu.Lock()
		versions = append(versions, s.Version)
		mu.Unlock()
	})
	startAndWait(t, e)
	e.ApplyFilter("restroom")
	unsubscribe()
	e.ClearFilter()

	mu.Lock()
	defer mu.Unlock()
	// parks, two topologies, two lookups, location, filter
	if len(versions) != 7 {
		t.Fatalf("expected 7 notifications, got %d (%v)", len(versions), versions)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("versions not increasing: %v", versions)
		}
	}
}

func TestEngine_ReadyAndFilterTags(t *testing.T) {
	e := newEngine(t, catalogSource(onePark(), `{"restroom":[1]}`, `{"pool":[1],"restroom":[]}`), nil)
	if e.Ready() || e.FiltersReady() {
		t.Fatal("engine ready before start")
	}
	startAndWait(t, e)
	if !e.Ready() || !e.FiltersReady() {
		t.Fatal("engine not ready after all fetches")
	}
	tags := e.FilterTags()
	if len(tags) != 2 || tags[0] != "pool" || tags[1] != "restroom" {
		t.Errorf("unexpected tags %v", tags)
	}
}

func TestEngine_NearbyRequiresLocation(t *testing.T) {
	e := newEngine(t, catalogSource(onePark(), `{}`, `{}`), nil)
	startAndWait(t, e)
	if _, err := e.NearbyParks(100, 10); !errors.Is(err, domain.ErrLocationUnavailable) {
		t.Fatalf("expected ErrLocationUnavailable, got %v", err)
	}
	e.SetUserLocation(domain.NewCoordinate(40.1, -70))
	parks, err := e.NearbyParks(100, 10)
	if err != nil || len(parks) != 1 {
		t.Errorf("expected 1 nearby park, got %d (%v)", len(parks), err)
	}
}
