package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Park is a named geographic area from the full park list.
type Park struct {
	ID       ParkID     `json:"park_id"`
	Name     string     `json:"name"`
	Center   Coordinate `json:"center"`
	Distance *float64   `json:"distance,omitempty"` // miles, computed field
}

// LookupKind names one of the two filter lookup tables.
type LookupKind string

const (
	LookupAmenity  LookupKind = "amenity"
	LookupFacility LookupKind = "facility"
)

// LookupKinds lists the kinds in fetch order.
var LookupKinds = []LookupKind{LookupAmenity, LookupFacility}

// ParseLookupKind validates a kind coming from config or a request.
func ParseLookupKind(s string) (LookupKind, error) {
	switch k := LookupKind(s); k {
	case LookupAmenity, LookupFacility:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLookupKind, s)
}

// LookupTable maps a filter tag to the parks carrying it.
// A nil table means "not loaded yet".
type LookupTable map[string][]ParkID

// UnmarshalJSON canonicalizes every id at ingestion. Entries that cannot
// be read as an id are dropped rather than failing the whole table.
func (t *LookupTable) UnmarshalJSON(data []byte) error {
	var raw map[string][]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(LookupTable, len(raw))
	for tag, ids := range raw {
		list := make([]ParkID, 0, len(ids))
		for _, r := range ids {
			var id ParkID
			if err := id.UnmarshalJSON(r); err != nil {
				continue
			}
			list = append(list, id)
		}
		out[tag] = list
	}
	*t = out
	return nil
}

// Tags returns the table's tags in sorted order.
func (t LookupTable) Tags() []string {
	tags := make([]string, 0, len(t))
	for tag := range t {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Category is one layer of per-park detail geometry.
type Category string

const (
	CategoryPark     Category = "park"
	CategoryAmenity  Category = "amenity"
	CategoryFacility Category = "facility"
	CategoryTrail    Category = "trail"
)

// Categories lists every detail layer fetched on selection.
var Categories = []Category{CategoryPark, CategoryAmenity, CategoryFacility, CategoryTrail}

// ParseCategory validates a category coming from a request path.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryPark, CategoryAmenity, CategoryFacility, CategoryTrail:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// TopologyBlob is a pre-processed TopoJSON payload. The engine only
// tracks whether it is present.
type TopologyBlob = json.RawMessage

// Topology names.
const (
	TopologyParks  = "parks"
	TopologyTrails = "trails"
)

// TopologySet holds the two topology slots; nil means not loaded.
type TopologySet struct {
	Parks  TopologyBlob `json:"parks,omitempty"`
	Trails TopologyBlob `json:"trails,omitempty"`
}

// FeatureGeometry is the detail geometry for one category of one park.
type FeatureGeometry struct {
	ParkID       ParkID          `json:"park_id"`
	Category     Category        `json:"category"`
	Payload      json.RawMessage `json:"payload"`
	FeatureCount int             `json:"feature_count"`
	Bounds       *Bounds         `json:"bounds,omitempty"`
}

// VisibleSet is the filtered view of the catalog. IDs follows Parks order.
type VisibleSet struct {
	Parks []Park   `json:"parks"`
	IDs   []ParkID `json:"ids"`
}

// Len returns the number of visible parks.
func (v VisibleSet) Len() int { return len(v.Parks) }

// NewVisibleSet derives the id list from parks.
func NewVisibleSet(parks []Park) VisibleSet {
	ids := make([]ParkID, len(parks))
	for i, p := range parks {
		ids[i] = p.ID
	}
	return VisibleSet{Parks: parks, IDs: ids}
}
