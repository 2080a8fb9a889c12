package ports

import (
	"context"

	"github.com/samirrijal/parkpass/internal/core/domain"
)

// ParkSource retrieves the park datasets. Each call is independent; the
// engine issues them concurrently and merges results as they land.
type ParkSource interface {
	FetchAllParks(ctx context.Context) ([]domain.Park, error)
	FetchAllParksTopology(ctx context.Context) (domain.TopologyBlob, error)
	FetchAllTrailsTopology(ctx context.Context) (domain.TopologyBlob, error)
	FetchLookup(ctx context.Context, kind domain.LookupKind) (domain.LookupTable, error)
	FetchFeatureGeometry(ctx context.Context, parkID domain.ParkID, category domain.Category) (*domain.FeatureGeometry, error)
}

// LocationResolver resolves where the user is. It may fail; callers treat
// failure as "location unknown".
type LocationResolver interface {
	ResolveUserLocation(ctx context.Context) (domain.Coordinate, error)
}

// ParkStore persists the datasets served by a ParkSource. Used by the
// ingestor to load a database-backed source.
type ParkStore interface {
	ReplaceParks(ctx context.Context, parks []domain.Park) error
	ReplaceLookup(ctx context.Context, kind domain.LookupKind, table domain.LookupTable) error
	PutTopology(ctx context.Context, name string, blob domain.TopologyBlob) error
	PutFeatureGeometry(ctx context.Context, fg *domain.FeatureGeometry) error
}

// IPLocator maps a client IP address to an approximate coordinate.
type IPLocator interface {
	LocateIP(ctx context.Context, ip string) (domain.Coordinate, error)
}
