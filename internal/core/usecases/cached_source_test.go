package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/parkpass/internal/core/domain"
	"github.com/samirrijal/parkpass/internal/core/usecases"
)

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]int
	fail bool
}

func newMockCache() *mockCache {
	return &mockCache{data: map[string][]byte{}, ttls: map[string]int{}}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("connection refused")
	}
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("valkey nil message")
	}
	return v, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("connection refused")
	}
	m.data[key] = value
	m.ttls[key] = ttlSeconds
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- Tests ---

func countingSource() (*mockSource, *int) {
	calls := 0
	src := &mockSource{
		parksFn: func(ctx context.Context) ([]domain.Park, error) {
			calls++
			return onePark(), nil
		},
	}
	return src, &calls
}

func TestCachedSource_LocalHit(t *testing.T) {
	src, calls := countingSource()
	cached := usecases.NewCachedSource(src, nil, 16, time.Minute)

	for i := 0; i < 3; i++ {
		parks, err := cached.FetchAllParks(context.Background())
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if len(parks) != 1 || parks[0].ID != 1 {
			t.Fatalf("unexpected parks %+v", parks)
		}
	}
	if *calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", *calls)
	}
}

func TestCachedSource_SharedHitAfterPurge(t *testing.T) {
	src, calls := countingSource()
	shared := newMockCache()
	cached := usecases.NewCachedSource(src, shared, 16, 5*time.Minute)

	if _, err := cached.FetchAllParks(context.Background()); err != nil {
		t.Fatal(err)
	}
	if shared.ttls["parkpass:parks"] != 300 {
		t.Errorf("expected shared ttl 300, got %d", shared.ttls["parkpass:parks"])
	}

	cached.Purge()
	parks, err := cached.FetchAllParks(context.Background())
	if err != nil || len(parks) != 1 {
		t.Fatalf("fetch after purge: %v %v", parks, err)
	}
	if *calls != 1 {
		t.Errorf("expected shared cache hit, upstream called %d times", *calls)
	}
}

func TestCachedSource_CacheFailureFallsThrough(t *testing.T) {
	src, calls := countingSource()
	shared := newMockCache()
	shared.fail = true
	cached := usecases.NewCachedSource(src, shared, 16, time.Minute)

	if _, err := cached.FetchAllParks(context.Background()); err != nil {
		t.Fatalf("cache failure should not surface: %v", err)
	}
	if *calls != 1 {
		t.Errorf("expected direct fetch, got %d calls", *calls)
	}
}

func TestCachedSource_ErrorsNotCached(t *testing.T) {
	fail := true
	src := &mockSource{
		parksTopoFn: func(ctx context.Context) (domain.TopologyBlob, error) {
			if fail {
				return nil, errors.New("503")
			}
			return domain.TopologyBlob(`{"type":"Topology"}`), nil
		},
	}
	cached := usecases.NewCachedSource(src, nil, 16, time.Minute)

	if _, err := cached.FetchAllParksTopology(context.Background()); err == nil {
		t.Fatal("expected upstream error")
	}
	fail = false
	blob, err := cached.FetchAllParksTopology(context.Background())
	if err != nil || string(blob) != `{"type":"Topology"}` {
		t.Errorf("expected fresh fetch after failure, got %s %v", blob, err)
	}
}

func TestCachedSource_LookupKeepsCanonicalIDs(t *testing.T) {
	cached := usecases.NewCachedSource(catalogSource(onePark(), `{"restroom":["1", 2]}`, `{}`), newMockCache(), 16, time.Minute)

	for i := 0; i < 2; i++ {
		table, err := cached.FetchLookup(context.Background(), domain.LookupAmenity)
		if err != nil {
			t.Fatal(err)
		}
		if !usecases.IsMember(table, "restroom", 1) || !usecases.IsMember(table, "restroom", "2") {
			t.Errorf("pass %d: ids lost through cache: %v", i, table)
		}
	}
}

func TestCachedSource_GeometryKeyedByParkAndCategory(t *testing.T) {
	src := &mockSource{}
	cached := usecases.NewCachedSource(src, nil, 16, time.Minute)

	for _, id := range []domain.ParkID{1, 2, 1} {
		fg, err := cached.FetchFeatureGeometry(context.Background(), id, domain.CategoryTrail)
		if err != nil || fg == nil || fg.ParkID != id {
			t.Fatalf("park %d: unexpected geometry %+v (%v)", id, fg, err)
		}
	}
	if n := len(src.featureCalls()); n != 2 {
		t.Errorf("expected 2 upstream geometry calls, got %d", n)
	}
}
