package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bluele/gcache"

	"github.com/samirrijal/parkpass/internal/core/domain"
	"github.com/samirrijal/parkpass/internal/core/ports"
	"github.com/samirrijal/parkpass/internal/core/usecases"
)

// --- Mock IPLocator ---

type mockIPLocator struct {
	locateFn func(ctx context.Context, ip string) (domain.Coordinate, error)
}

func (m *mockIPLocator) LocateIP(ctx context.Context, ip string) (domain.Coordinate, error) {
	return m.locateFn(ctx, ip)
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu       sync.Mutex
	sessions map[string]int
}

func (m *mockPublisher) PublishSnapshot(ctx context.Context, sessionID string, snap domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions == nil {
		m.sessions = map[string]int{}
	}
	m.sessions[sessionID]++
	return nil
}

func (m *mockPublisher) count(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// --- Tests ---

func newSessions(src *mockSource, geo ports.IPLocator, pub ports.EventPublisher, cfg usecases.SessionConfig) *usecases.SessionService {
	return usecases.NewSessionService(src, geo, pub, cfg, quietLogger)
}

func TestSessionService_CreateAndGet(t *testing.T) {
	svc := newSessions(catalogSource(onePark(), `{}`, `{}`), nil, nil, usecases.SessionConfig{})
	defer svc.Close()

	sess, err := svc.Create(context.Background(), usecases.CreateSessionRequest{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.ID == "" || sess.Locator != "none" {
		t.Errorf("unexpected session %+v", sess)
	}

	got, err := svc.Get(sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != sess {
		t.Error("expected the same session")
	}
	got.Engine.Wait()
	if len(got.Engine.VisibleParkIDs()) != 1 {
		t.Error("engine was not started")
	}
}

func TestSessionService_LocatorChoice(t *testing.T) {
	geo := &mockIPLocator{locateFn: func(ctx context.Context, ip string) (domain.Coordinate, error) {
		if ip != "203.0.113.7" {
			t.Errorf("unexpected ip %s", ip)
		}
		return domain.NewCoordinate(41, -70), nil
	}}
	svc := newSessions(catalogSource(onePark(), `{}`, `{}`), geo, nil, usecases.SessionConfig{})
	defer svc.Close()

	loc := domain.NewCoordinate(40.5, -70)
	static, err := svc.Create(context.Background(), usecases.CreateSessionRequest{Location: &loc, ClientIP: "203.0.113.7"})
	if err != nil {
		t.Fatal(err)
	}
	if static.Locator != "static" {
		t.Errorf("explicit location should win, got %s", static.Locator)
	}

	byIP, err := svc.Create(context.Background(), usecases.CreateSessionRequest{ClientIP: "203.0.113.7"})
	if err != nil {
		t.Fatal(err)
	}
	if byIP.Locator != "geoip" {
		t.Errorf("expected geoip locator, got %s", byIP.Locator)
	}
	byIP.Engine.Wait()
	if got, ok := byIP.Engine.UserLocation(); !ok || got != domain.NewCoordinate(41, -70) {
		t.Errorf("unexpected location %v %v", got, ok)
	}
}

func TestSessionService_RejectsInvalidLocation(t *testing.T) {
	svc := newSessions(&mockSource{}, nil, nil, usecases.SessionConfig{})
	defer svc.Close()

	bad := domain.NewCoordinate(123, 0)
	_, err := svc.Create(context.Background(), usecases.CreateSessionRequest{Location: &bad})
	if !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
	if svc.Count() != 0 {
		t.Error("invalid request registered a session")
	}
}

func TestSessionService_DeleteAndNotFound(t *testing.T) {
	svc := newSessions(&mockSource{}, nil, nil, usecases.SessionConfig{})
	defer svc.Close()

	sess, err := svc.Create(context.Background(), usecases.CreateSessionRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(sess.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := svc.Delete(sess.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound on second delete, got %v", err)
	}
}

func TestSessionService_Expiry(t *testing.T) {
	clock := gcache.NewFakeClock()
	svc := newSessions(&mockSource{}, nil, nil, usecases.SessionConfig{TTL: time.Minute, Clock: clock})
	defer svc.Close()

	idle, _ := svc.Create(context.Background(), usecases.CreateSessionRequest{})
	active, _ := svc.Create(context.Background(), usecases.CreateSessionRequest{})

	clock.Advance(40 * time.Second)
	if _, err := svc.Get(active.ID); err != nil {
		t.Fatalf("get active: %v", err)
	}
	clock.Advance(40 * time.Second)

	if n := svc.Sweep(); n != 1 {
		t.Errorf("expected 1 expired session, got %d", n)
	}
	if _, err := svc.Get(idle.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Error("idle session should have expired")
	}
	if _, err := svc.Get(active.ID); err != nil {
		t.Error("access should have refreshed the active session")
	}
}

func TestSessionService_CapacityEvictsLeastRecent(t *testing.T) {
	svc := newSessions(&mockSource{}, nil, nil, usecases.SessionConfig{Max: 2})
	defer svc.Close()

	first, _ := svc.Create(context.Background(), usecases.CreateSessionRequest{})
	second, _ := svc.Create(context.Background(), usecases.CreateSessionRequest{})
	_, _ = svc.Get(first.ID)
	_, _ = svc.Create(context.Background(), usecases.CreateSessionRequest{})

	if _, err := svc.Get(second.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Error("least recently used session should have been evicted")
	}
	if _, err := svc.Get(first.ID); err != nil {
		t.Error("recently used session was evicted")
	}
}

func TestSessionService_PublishesSnapshots(t *testing.T) {
	pub := &mockPublisher{}
	svc := newSessions(catalogSource(onePark(), `{}`, `{}`), nil, pub, usecases.SessionConfig{})
	defer svc.Close()

	sess, err := svc.Create(context.Background(), usecases.CreateSessionRequest{})
	if err != nil {
		t.Fatal(err)
	}
	sess.Engine.Wait()
	sess.Engine.ApplyFilter("restroom")

	// parks, two topologies, two lookups, location failure, filter
	if got := pub.count(sess.ID); got != 7 {
		t.Errorf("expected 7 published snapshots, got %d", got)
	}
}
