package geoip

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/samirrijal/parkpass/internal/core/domain"
)

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
}

// Locator implements ports.IPLocator over a MaxMind City database.
type Locator struct {
	db     cityReader
	closer func() error
}

// Open loads the MaxMind database at path.
func Open(path string) (*Locator, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip open %s: %w", path, err)
	}
	return &Locator{db: r, closer: r.Close}, nil
}

// LocateIP returns the city-level coordinate for ip. Private, malformed,
// or unmapped addresses yield domain.ErrLocationUnavailable.
func (l *Locator) LocateIP(ctx context.Context, ip string) (domain.Coordinate, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return domain.Coordinate{}, fmt.Errorf("%w: bad ip %q", domain.ErrLocationUnavailable, ip)
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() {
		return domain.Coordinate{}, fmt.Errorf("%w: non-routable ip %s", domain.ErrLocationUnavailable, ip)
	}

	rec, err := l.db.City(addr)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("geoip lookup %s: %w", ip, err)
	}
	// MaxMind reports 0,0 when it has no location for the network.
	if rec.Location.Latitude == 0 && rec.Location.Longitude == 0 {
		return domain.Coordinate{}, fmt.Errorf("%w: no location for %s", domain.ErrLocationUnavailable, ip)
	}
	return domain.NewCoordinate(rec.Location.Latitude, rec.Location.Longitude), nil
}

// Close releases the database.
func (l *Locator) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer()
}
