package usecases

import (
	"context"

	"github.com/samirrijal/parkpass/internal/core/domain"
	"github.com/samirrijal/parkpass/internal/core/ports"
)

// StaticLocator resolves to a coordinate the client already knows, such
// as a browser geolocation fix forwarded with the session request.
type StaticLocator struct {
	Location domain.Coordinate
}

func (l StaticLocator) ResolveUserLocation(ctx context.Context) (domain.Coordinate, error) {
	if !l.Location.Valid() {
		return domain.Coordinate{}, domain.ErrLocationUnavailable
	}
	return l.Location, nil
}

// IPLocation resolves the user location from the client IP.
type IPLocation struct {
	Locator ports.IPLocator
	IP      string
}

func (l IPLocation) ResolveUserLocation(ctx context.Context) (domain.Coordinate, error) {
	return l.Locator.LocateIP(ctx, l.IP)
}

// NoLocator never knows where the user is.
type NoLocator struct{}

func (NoLocator) ResolveUserLocation(context.Context) (domain.Coordinate, error) {
	return domain.Coordinate{}, domain.ErrLocationUnavailable
}
