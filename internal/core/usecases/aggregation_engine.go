package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/parkpass/internal/core/domain"
	"github.com/samirrijal/parkpass/internal/core/ports"
	"github.com/samirrijal/parkpass/internal/pkg/metrics"
)

var tracer = otel.Tracer("github.com/samirrijal/parkpass/internal/core/usecases")

// AggregationEngine owns one user's view of the park data. It issues the
// independent fetches, merges each result as it lands, and derives the
// visible set. All state is guarded by mu; observers run after the lock
// is released, one notification at a time in version order.
type AggregationEngine struct {
	source  ports.ParkSource
	locator ports.LocationResolver
	logger  *slog.Logger

	mu           sync.RWMutex
	catalog      *ParkCatalog
	lookups      *LookupIndex
	features     *FeatureStore
	selection    *SelectionController
	selectedPark *domain.Park
	topology     domain.TopologySet
	filter       *string
	visible      domain.VisibleSet
	sources      map[string]domain.SourceStatus
	version      uint64

	// notifyMu serializes mutate calls so observers see versions in order.
	// Observers must not call back into mutating methods synchronously.
	notifyMu  sync.Mutex
	obsMu     sync.Mutex
	observers map[int]func(domain.Snapshot)
	nextObs   int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started sync.Once
}

// EngineOption configures an AggregationEngine.
type EngineOption func(*AggregationEngine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *AggregationEngine) { e.logger = l }
}

// NewAggregationEngine creates an engine. locator may be nil, in which
// case the user location is treated as unavailable.
func NewAggregationEngine(source ports.ParkSource, locator ports.LocationResolver, opts ...EngineOption) *AggregationEngine {
	e := &AggregationEngine{
		source:    source,
		locator:   locator,
		logger:    slog.Default(),
		catalog:   NewParkCatalog(),
		lookups:   NewLookupIndex(),
		features:  NewFeatureStore(),
		selection: NewSelectionController(),
		visible:   domain.NewVisibleSet(nil),
		sources: map[string]domain.SourceStatus{
			domain.SourceParks:          domain.StatusPending,
			domain.SourceParksTopology:  domain.StatusPending,
			domain.SourceTrailsTopology: domain.StatusPending,
			domain.SourceAmenityLookup:  domain.StatusPending,
			domain.SourceFacilityLookup: domain.StatusPending,
			domain.SourceLocation:       domain.StatusPending,
		},
		observers: make(map[int]func(domain.Snapshot)),
	}
	for _, o := range opts {
		o(e)
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// Start issues the six startup fetches concurrently and returns at once.
// Values from ctx are kept but its cancellation is not, so a session
// outlives the request that created it; Close cancels the fetches. Only
// the first call has effect.
func (e *AggregationEngine) Start(ctx context.Context) {
	e.started.Do(func() {
		startCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
		context.AfterFunc(e.ctx, stop)

		e.run(startCtx, domain.SourceParks, func(ctx context.Context) error {
			parks, err := e.source.FetchAllParks(ctx)
			if err != nil {
				return err
			}
			e.mutate(func() bool {
				e.catalog.Load(parks)
				e.recomputeVisibleLocked()
				e.sources[domain.SourceParks] = domain.StatusLoaded
				return true
			})
			e.logger.Info("parks loaded", "count", len(parks))
			return nil
		})

		e.run(startCtx, domain.SourceParksTopology, func(ctx context.Context) error {
			blob, err := e.source.FetchAllParksTopology(ctx)
			if err != nil {
				return err
			}
			e.mutate(func() bool {
				e.topology.Parks = blob
				e.sources[domain.SourceParksTopology] = domain.StatusLoaded
				return true
			})
			return nil
		})

		e.run(startCtx, domain.SourceTrailsTopology, func(ctx context.Context) error {
			blob, err := e.source.FetchAllTrailsTopology(ctx)
			if err != nil {
				return err
			}
			e.mutate(func() bool {
				e.topology.Trails = blob
				e.sources[domain.SourceTrailsTopology] = domain.StatusLoaded
				return true
			})
			return nil
		})

		for _, kind := range domain.LookupKinds {
			e.run(startCtx, domain.LookupSource(kind), func(ctx context.Context) error {
				table, err := e.source.FetchLookup(ctx, kind)
				if err != nil {
					return err
				}
				e.mutate(func() bool {
					e.lookups.Set(kind, table)
					if e.filter != nil {
						e.recomputeVisibleLocked()
					}
					e.sources[domain.LookupSource(kind)] = domain.StatusLoaded
					return true
				})
				return nil
			})
		}

		e.run(startCtx, domain.SourceLocation, func(ctx context.Context) error {
			if e.locator == nil {
				return domain.ErrLocationUnavailable
			}
			loc, err := e.locator.ResolveUserLocation(ctx)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrLocationUnavailable, err)
			}
			e.setLocation(loc, false)
			return nil
		})
	})
}

// SetUserLocation annotates the catalog with distances from loc. Parks
// loaded later are annotated on load. An explicit location always replaces
// the current one, including a resolver fix that lands afterwards.
func (e *AggregationEngine) SetUserLocation(loc domain.Coordinate) {
	e.setLocation(loc, true)
}

// setLocation applies loc. Resolver fixes only fill an empty slot.
func (e *AggregationEngine) setLocation(loc domain.Coordinate, explicit bool) {
	e.mutate(func() bool {
		if !explicit && e.sources[domain.SourceLocation] == domain.StatusLoaded {
			e.logger.Debug("resolved location ignored, already set")
			return false
		}
		e.catalog.AnnotateDistances(loc)
		e.recomputeVisibleLocked()
		e.sources[domain.SourceLocation] = domain.StatusLoaded
		return true
	})
}

// run executes one fetch-and-merge in its own goroutine. A failure leaves
// the slot unloaded; it is logged and counted, never returned.
func (e *AggregationEngine) run(parent context.Context, name string, fn func(ctx context.Context) error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, span := tracer.Start(parent, "fetch "+name)
		span.SetAttributes(attribute.String("parkpass.source", name))
		defer span.End()

		start := time.Now()
		err := fn(ctx)
		metrics.SourceFetchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.SourceFetches.WithLabelValues(name, "ok").Inc()
			return
		}

		metrics.SourceFetches.WithLabelValues(name, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if errors.Is(err, context.Canceled) {
			e.logger.Debug("fetch cancelled", "source", name)
			return
		}
		if errors.Is(err, domain.ErrLocationUnavailable) {
			e.logger.Info("user location unavailable", "error", err)
		} else {
			e.logger.Warn("fetch failed", "source", name, "error", err)
		}
		e.mutate(func() bool {
			if status, tracked := e.sources[name]; !tracked || status == domain.StatusLoaded {
				return false
			}
			e.sources[name] = domain.StatusError
			return true
		})
	}()
}

// mutate applies fn under the write lock and, if fn reports a change,
// bumps the version and notifies observers with the new snapshot.
func (e *AggregationEngine) mutate(fn func() bool) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	changed := fn()
	var snap domain.Snapshot
	if changed {
		e.version++
		snap = e.snapshotLocked()
	}
	e.mu.Unlock()

	if changed {
		e.notify(snap)
	}
}

func (e *AggregationEngine) recomputeVisibleLocked() {
	if e.filter == nil {
		e.visible = e.catalog.All()
		return
	}
	e.visible = e.catalog.Filter(e.lookups.Predicate(*e.filter))
}

// ApplyFilter narrows the visible set to parks tagged with tag in either
// lookup table. It always starts from the full catalog, so successive
// calls replace rather than compound each other.
func (e *AggregationEngine) ApplyFilter(tag string) domain.VisibleSet {
	var out domain.VisibleSet
	e.mutate(func() bool {
		t := tag
		e.filter = &t
		e.recomputeVisibleLocked()
		out = e.visible
		return true
	})
	metrics.FiltersApplied.Inc()
	return out
}

// ClearFilter makes the whole catalog visible again.
func (e *AggregationEngine) ClearFilter() domain.VisibleSet {
	var out domain.VisibleSet
	e.mutate(func() bool {
		e.filter = nil
		e.recomputeVisibleLocked()
		out = e.visible
		return true
	})
	return out
}

// SelectParkWithID looks the park up in the catalog and selects it.
func (e *AggregationEngine) SelectParkWithID(id any) error {
	pid, err := domain.ParseParkID(id)
	if err != nil {
		return err
	}
	e.mu.RLock()
	park, ok := e.catalog.Find(pid)
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrParkNotFound, pid)
	}
	e.SelectPark(park)
	return nil
}

// SelectPark enters Detail mode for park and fetches its four geometry
// layers concurrently. Layers land independently; results that arrive
// after the selection has moved on are discarded.
func (e *AggregationEngine) SelectPark(park domain.Park) {
	var gen uint64
	e.mutate(func() bool {
		gen = e.selection.Select(park.ID)
		e.features.Reset(park.ID)
		p := park
		e.selectedPark = &p
		return true
	})

	for _, cat := range domain.Categories {
		e.run(e.ctx, "feature_"+string(cat), func(ctx context.Context) error {
			fg, err := e.source.FetchFeatureGeometry(ctx, park.ID, cat)
			if err != nil {
				return fmt.Errorf("park %s %s: %w", park.ID, cat, err)
			}
			if fg == nil {
				return nil
			}
			stored := *fg
			stored.ParkID, stored.Category = park.ID, cat
			e.mutate(func() bool {
				if !e.selection.IsCurrent(gen) {
					metrics.StaleGeometryDiscarded.Inc()
					e.logger.Debug("discarding stale geometry", "park_id", park.ID, "category", cat)
					return false
				}
				return e.features.Set(cat, &stored)
			})
			return nil
		})
	}
}

// ReturnToBrowsing leaves Detail mode and drops the loaded geometry.
// In-flight geometry for the old selection is discarded when it lands.
func (e *AggregationEngine) ReturnToBrowsing() {
	e.mutate(func() bool {
		if !e.selection.Clear() {
			return false
		}
		e.features.Clear()
		e.selectedPark = nil
		return true
	})
}

// Snapshot returns a consistent copy of the current state.
func (e *AggregationEngine) Snapshot() domain.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

func (e *AggregationEngine) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{
		Version:      e.version,
		Ready:        e.readyLocked(),
		FiltersReady: e.lookups.AllLoaded(),
		Visible:      copyVisible(e.visible),
		Selection:    e.selection.State(),
		Features:     e.features.All(),
		Topology:     e.topology,
		Sources:      make(map[string]domain.SourceStatus, len(e.sources)),
	}
	if e.filter != nil {
		f := *e.filter
		snap.Filter = &f
		snap.FilterKnown = e.lookups.HasTag(f)
	}
	if e.selectedPark != nil {
		p := *e.selectedPark
		if fresh, ok := e.catalog.Find(p.ID); ok {
			p = fresh
		}
		snap.SelectedPark = &p
	}
	if loc, ok := e.catalog.Location(); ok {
		snap.UserLocation = &loc
	}
	for k, v := range e.sources {
		snap.Sources[k] = v
	}
	return snap
}

func copyVisible(v domain.VisibleSet) domain.VisibleSet {
	parks := make([]domain.Park, len(v.Parks))
	copy(parks, v.Parks)
	ids := make([]domain.ParkID, len(v.IDs))
	copy(ids, v.IDs)
	return domain.VisibleSet{Parks: parks, IDs: ids}
}

func (e *AggregationEngine) readyLocked() bool {
	return e.catalog.Loaded() && e.topology.Parks != nil && e.topology.Trails != nil
}

// VisibleParks returns the parks passing the active filter.
func (e *AggregationEngine) VisibleParks() []domain.Park {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyVisible(e.visible).Parks
}

// VisibleParkIDs returns the ids of VisibleParks, in the same order.
func (e *AggregationEngine) VisibleParkIDs() []domain.ParkID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyVisible(e.visible).IDs
}

// Selection returns the selection state.
func (e *AggregationEngine) Selection() domain.SelectionState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.selection.State()
}

// FeatureGeometry returns the loaded geometry for category, or nil.
func (e *AggregationEngine) FeatureGeometry(category domain.Category) *domain.FeatureGeometry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.features.Get(category)
}

// Topology returns the topology slots.
func (e *AggregationEngine) Topology() domain.TopologySet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.topology
}

// UserLocation returns the resolved user location, if any.
func (e *AggregationEngine) UserLocation() (domain.Coordinate, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.catalog.Location()
}

// FindPark looks a park up in the catalog.
func (e *AggregationEngine) FindPark(id any) (domain.Park, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.catalog.Find(id)
}

// FilterTags returns the tags offered by the loaded lookup tables.
func (e *AggregationEngine) FilterTags() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lookups.Tags()
}

// Ready reports whether parks and both topologies have loaded.
func (e *AggregationEngine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.readyLocked()
}

// FiltersReady reports whether both lookup tables have loaded.
func (e *AggregationEngine) FiltersReady() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lookups.AllLoaded()
}

// NearbyParks returns catalog parks within radiusMiles of the user,
// closest first.
func (e *AggregationEngine) NearbyParks(radiusMiles float64, limit int) ([]domain.Park, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	loc, ok := e.catalog.Location()
	if !ok {
		return nil, domain.ErrLocationUnavailable
	}
	return e.catalog.Nearest(loc, radiusMiles, limit), nil
}

// ParksWithin returns catalog parks whose center lies inside b.
func (e *AggregationEngine) ParksWithin(b domain.Bounds) []domain.Park {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.catalog.WithinBounds(b)
}

// Subscribe registers fn to receive a snapshot after every mutation.
// The returned func removes it.
func (e *AggregationEngine) Subscribe(fn func(domain.Snapshot)) func() {
	e.obsMu.Lock()
	id := e.nextObs
	e.nextObs++
	e.observers[id] = fn
	e.obsMu.Unlock()

	return func() {
		e.obsMu.Lock()
		delete(e.observers, id)
		e.obsMu.Unlock()
	}
}

func (e *AggregationEngine) notify(snap domain.Snapshot) {
	e.obsMu.Lock()
	fns := make([]func(domain.Snapshot), 0, len(e.observers))
	for _, fn := range e.observers {
		fns = append(fns, fn)
	}
	e.obsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Wait blocks until every fetch issued so far has merged or failed.
func (e *AggregationEngine) Wait() {
	e.wg.Wait()
}

// Close cancels in-flight fetches and drops observers.
func (e *AggregationEngine) Close() {
	e.cancel()
	e.obsMu.Lock()
	e.observers = make(map[int]func(domain.Snapshot))
	e.obsMu.Unlock()
}
