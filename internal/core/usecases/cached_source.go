package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/bluele/gcache"
	jsoniter "github.com/json-iterator/go"

	"github.com/samirrijal/parkpass/internal/core/domain"
	"github.com/samirrijal/parkpass/internal/core/ports"
	"github.com/samirrijal/parkpass/internal/pkg/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CachedSource decorates a ParkSource with a two-level read-through cache:
// an in-process LRU in front of a shared CacheService. Errors from either
// cache fall through to the wrapped source. Fetch errors are never cached.
type CachedSource struct {
	next  ports.ParkSource
	local gcache.Cache
	cache ports.CacheService
	ttl   time.Duration
}

// NewCachedSource wraps next. cache may be nil to run with the LRU only.
func NewCachedSource(next ports.ParkSource, cache ports.CacheService, lruSize int, ttl time.Duration) *CachedSource {
	if lruSize <= 0 {
		lruSize = 256
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedSource{
		next:  next,
		local: gcache.New(lruSize).LRU().Expiration(ttl).Build(),
		cache: cache,
		ttl:   ttl,
	}
}

// FetchAllParks returns the park list.
func (s *CachedSource) FetchAllParks(ctx context.Context) ([]domain.Park, error) {
	var parks []domain.Park
	err := s.load(ctx, "parks", "parkpass:parks", &parks, func() (any, error) {
		return s.next.FetchAllParks(ctx)
	})
	return parks, err
}

// FetchAllParksTopology returns the parks TopoJSON blob.
func (s *CachedSource) FetchAllParksTopology(ctx context.Context) (domain.TopologyBlob, error) {
	return s.loadBlob(ctx, "parks_topology", "parkpass:topology:parks", s.next.FetchAllParksTopology)
}

// FetchAllTrailsTopology returns the trails TopoJSON blob.
func (s *CachedSource) FetchAllTrailsTopology(ctx context.Context) (domain.TopologyBlob, error) {
	return s.loadBlob(ctx, "trails_topology", "parkpass:topology:trails", s.next.FetchAllTrailsTopology)
}

// FetchLookup returns the lookup table for kind.
func (s *CachedSource) FetchLookup(ctx context.Context, kind domain.LookupKind) (domain.LookupTable, error) {
	var table domain.LookupTable
	err := s.load(ctx, "lookup", "parkpass:lookup:"+string(kind), &table, func() (any, error) {
		return s.next.FetchLookup(ctx, kind)
	})
	return table, err
}

// FetchFeatureGeometry returns one geometry layer of one park.
func (s *CachedSource) FetchFeatureGeometry(ctx context.Context, parkID domain.ParkID, category domain.Category) (*domain.FeatureGeometry, error) {
	var fg *domain.FeatureGeometry
	key := fmt.Sprintf("parkpass:geo:%s:%s", parkID, category)
	err := s.load(ctx, "feature_geometry", key, &fg, func() (any, error) {
		return s.next.FetchFeatureGeometry(ctx, parkID, category)
	})
	return fg, err
}

func (s *CachedSource) loadBlob(ctx context.Context, op, key string, fetch func(context.Context) (domain.TopologyBlob, error)) (domain.TopologyBlob, error) {
	var blob domain.TopologyBlob
	err := s.load(ctx, op, key, &blob, func() (any, error) {
		return fetch(ctx)
	})
	return blob, err
}

// load decodes the cached payload for key into out, or calls fetch and
// stores its encoded result in both layers. Payloads are kept encoded so
// callers never share mutable values.
func (s *CachedSource) load(ctx context.Context, op, key string, out any, fetch func() (any, error)) error {
	if v, err := s.local.Get(key); err == nil {
		if data, ok := v.([]byte); ok && json.Unmarshal(data, out) == nil {
			metrics.CacheHits.WithLabelValues("local", op).Inc()
			return nil
		}
	}

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			if err := json.Unmarshal(data, out); err == nil {
				metrics.CacheHits.WithLabelValues("shared", op).Inc()
				_ = s.local.Set(key, data)
				return nil
			}
		}
	}

	metrics.CacheMisses.WithLabelValues(op).Inc()
	v, err := fetch()
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", op, err)
	}
	if string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", op, err)
	}

	_ = s.local.Set(key, data)
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, data, int(s.ttl.Seconds()))
	}
	return nil
}

// Purge drops every entry from the in-process layer.
func (s *CachedSource) Purge() {
	s.local.Purge()
}
