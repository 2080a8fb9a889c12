package usecases

import (
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/samirrijal/parkpass/internal/core/domain"
	"github.com/samirrijal/parkpass/internal/pkg/geospatial"
)

// pointTolerance gives each park a tiny extent; rtreego rejects zero-size rects.
const pointTolerance = 1e-9

// ParkCatalog is the canonical set of all known parks. It is not safe for
// concurrent use; the engine guards it.
type ParkCatalog struct {
	parks    []domain.Park
	byID     map[domain.ParkID]int
	tree     *rtreego.Rtree
	location *domain.Coordinate
	loaded   bool
}

// NewParkCatalog creates an empty, not-yet-loaded catalog.
func NewParkCatalog() *ParkCatalog {
	return &ParkCatalog{byID: map[domain.ParkID]int{}, tree: rtreego.NewTree(2, 25, 50)}
}

// indexedPark adapts a catalog slot to rtreego.Spatial. The tree is kept
// in (lat, lng) order, the same as Coordinate.
type indexedPark struct {
	slot   int
	center domain.Coordinate
}

func (p indexedPark) Bounds() rtreego.Rect {
	return rtreego.Point{p.center.Lat(), p.center.Lng()}.ToRect(pointTolerance)
}

// Load replaces the whole catalog. Nothing from the previous load
// survives. A repeated id keeps its first position and its last value.
// If a user location is known the new parks are annotated immediately.
func (c *ParkCatalog) Load(parks []domain.Park) {
	next := make([]domain.Park, 0, len(parks))
	byID := make(map[domain.ParkID]int, len(parks))
	for _, p := range parks {
		p.Distance = nil
		if i, dup := byID[p.ID]; dup {
			next[i] = p
			continue
		}
		byID[p.ID] = len(next)
		next = append(next, p)
	}

	tree := rtreego.NewTree(2, 25, 50)
	for i, p := range next {
		if p.Center.Valid() {
			tree.Insert(indexedPark{slot: i, center: p.Center})
		}
	}

	c.parks, c.byID, c.tree, c.loaded = next, byID, tree, true
	if c.location != nil {
		c.annotate(*c.location)
	}
}

// AnnotateDistances sets every park's distance from loc, in miles, and
// remembers loc for later loads. Calling it twice with the same location
// yields the same distances.
func (c *ParkCatalog) AnnotateDistances(loc domain.Coordinate) {
	l := loc
	c.location = &l
	c.annotate(loc)
}

func (c *ParkCatalog) annotate(loc domain.Coordinate) {
	for i := range c.parks {
		d := geospatial.Distance(loc, c.parks[i].Center, geospatial.Miles)
		c.parks[i].Distance = &d
	}
}

// Location returns the location distances were computed from, if any.
func (c *ParkCatalog) Location() (domain.Coordinate, bool) {
	if c.location == nil {
		return domain.Coordinate{}, false
	}
	return *c.location, true
}

// Loaded reports whether Load has been called at least once.
func (c *ParkCatalog) Loaded() bool { return c.loaded }

// Len returns the number of parks.
func (c *ParkCatalog) Len() int { return len(c.parks) }

// Find looks a park up by any id form accepted by domain.ParseParkID.
func (c *ParkCatalog) Find(id any) (domain.Park, bool) {
	pid, err := domain.ParseParkID(id)
	if err != nil {
		return domain.Park{}, false
	}
	i, ok := c.byID[pid]
	if !ok {
		return domain.Park{}, false
	}
	return c.parks[i], true
}

// Filter applies pred over the full catalog in catalog order. A nil
// predicate selects every park.
func (c *ParkCatalog) Filter(pred func(domain.Park) bool) domain.VisibleSet {
	out := make([]domain.Park, 0, len(c.parks))
	for _, p := range c.parks {
		if pred == nil || pred(p) {
			out = append(out, p)
		}
	}
	return domain.NewVisibleSet(out)
}

// All returns the full catalog as a VisibleSet.
func (c *ParkCatalog) All() domain.VisibleSet {
	return c.Filter(nil)
}

// WithinBounds returns the parks whose center lies inside b, in catalog order.
func (c *ParkCatalog) WithinBounds(b domain.Bounds) []domain.Park {
	if !b.Valid() {
		return nil
	}
	rect, err := rtreego.NewRectFromPoints(
		rtreego.Point{b.MinLat - pointTolerance, b.MinLon - pointTolerance},
		rtreego.Point{b.MaxLat + pointTolerance, b.MaxLon + pointTolerance},
	)
	if err != nil {
		return nil
	}
	hits := c.tree.SearchIntersect(rect)
	slots := make([]int, 0, len(hits))
	for _, h := range hits {
		ip := h.(indexedPark)
		if b.Contains(ip.center) {
			slots = append(slots, ip.slot)
		}
	}
	sort.Ints(slots)
	out := make([]domain.Park, len(slots))
	for i, s := range slots {
		out[i] = c.parks[s]
	}
	return out
}

// Nearest returns up to limit parks within radiusMiles of loc, closest
// first. Distances on the returned parks are relative to loc.
func (c *ParkCatalog) Nearest(loc domain.Coordinate, radiusMiles float64, limit int) []domain.Park {
	box := geospatial.BoundingBox(loc, geospatial.ToMeters(radiusMiles, geospatial.Miles))
	candidates := c.WithinBounds(box)

	out := make([]domain.Park, 0, len(candidates))
	for _, p := range candidates {
		d := geospatial.Distance(loc, p.Center, geospatial.Miles)
		if d > radiusMiles {
			continue
		}
		p.Distance = &d
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].Distance < *out[j].Distance })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
