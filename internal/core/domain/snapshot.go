package domain

// SourceStatus is the load state of one asynchronous input.
type SourceStatus string

const (
	StatusPending SourceStatus = "pending"
	StatusLoaded  SourceStatus = "loaded"
	StatusError   SourceStatus = "error"
)

// Source names used in Snapshot.Sources, logs and metrics.
const (
	SourceParks          = "parks"
	SourceParksTopology  = "parks_topology"
	SourceTrailsTopology = "trails_topology"
	SourceAmenityLookup  = "amenity_lookup"
	SourceFacilityLookup = "facility_lookup"
	SourceLocation       = "location"
)

// LookupSource maps a lookup kind to its source name.
func LookupSource(kind LookupKind) string {
	if kind == LookupFacility {
		return SourceFacilityLookup
	}
	return SourceAmenityLookup
}

// Snapshot is a consistent, read-only view of an engine at one version.
type Snapshot struct {
	Version      uint64                        `json:"version"`
	Ready        bool                          `json:"ready"`
	FiltersReady bool                          `json:"filters_ready"`
	Filter       *string                       `json:"filter,omitempty"`
	FilterKnown  bool                          `json:"filter_known"`
	Visible      VisibleSet                    `json:"visible"`
	Selection    SelectionState                `json:"selection"`
	SelectedPark *Park                         `json:"selected_park,omitempty"`
	Features     map[Category]*FeatureGeometry `json:"features"`
	Topology     TopologySet                   `json:"topology"`
	UserLocation *Coordinate                   `json:"user_location,omitempty"`
	Sources      map[string]SourceStatus       `json:"sources"`
}
