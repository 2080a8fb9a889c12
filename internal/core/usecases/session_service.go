package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluele/gcache"
	"github.com/google/uuid"

	"github.com/samirrijal/parkpass/internal/core/domain"
	"github.com/samirrijal/parkpass/internal/core/ports"
	"github.com/samirrijal/parkpass/internal/pkg/metrics"
)

// Session is one user's engine plus bookkeeping.
type Session struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"created_at"`
	Locator   string             `json:"locator"` // static | geoip | none
	Engine    *AggregationEngine `json:"-"`
}

// CreateSessionRequest carries what the client knows about itself.
type CreateSessionRequest struct {
	Location *domain.Coordinate
	ClientIP string
}

// SessionConfig bounds the registry.
type SessionConfig struct {
	TTL   time.Duration
	Max   int
	Clock gcache.Clock
}

// SessionService creates and tracks per-user aggregation engines. Sessions
// live in memory only and expire after TTL without access.
type SessionService struct {
	source   ports.ParkSource
	geo      ports.IPLocator
	events   ports.EventPublisher
	logger   *slog.Logger
	sessions gcache.Cache
}

// NewSessionService creates a registry. geo and events may be nil.
func NewSessionService(source ports.ParkSource, geo ports.IPLocator, events ports.EventPublisher, cfg SessionConfig, logger *slog.Logger) *SessionService {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.Max <= 0 {
		cfg.Max = 10000
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &SessionService{source: source, geo: geo, events: events, logger: logger}

	release := func(key, value interface{}) {
		if sess, ok := value.(*Session); ok {
			sess.Engine.Close()
			metrics.ActiveSessions.Dec()
			s.logger.Debug("session released", "session", sess.ID)
		}
	}
	builder := gcache.New(cfg.Max).LRU().
		Expiration(cfg.TTL).
		EvictedFunc(release).
		PurgeVisitorFunc(release)
	if cfg.Clock != nil {
		builder = builder.Clock(cfg.Clock)
	}
	s.sessions = builder.Build()
	return s
}

// Create starts a new session and its startup fetches. The engine keeps
// running after ctx is done; only its values are inherited.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	if req.Location != nil && !req.Location.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidCoordinate, req.Location)
	}

	id := uuid.NewString()
	locator, kind := s.locatorFor(req)
	logger := s.logger.With("session", id)

	engine := NewAggregationEngine(s.source, locator, WithLogger(logger))
	sess := &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Locator:   kind,
		Engine:    engine,
	}

	if s.events != nil {
		engine.Subscribe(func(snap domain.Snapshot) {
			if err := s.events.PublishSnapshot(context.Background(), id, snap); err != nil {
				logger.Warn("publish snapshot failed", "version", snap.Version, "error", err)
			}
		})
	}

	if err := s.sessions.Set(id, sess); err != nil {
		engine.Close()
		return nil, fmt.Errorf("register session: %w", err)
	}
	metrics.ActiveSessions.Inc()

	engine.Start(ctx)
	logger.Info("session created", "locator", kind)
	return sess, nil
}

func (s *SessionService) locatorFor(req CreateSessionRequest) (ports.LocationResolver, string) {
	switch {
	case req.Location != nil:
		return StaticLocator{Location: *req.Location}, "static"
	case s.geo != nil && req.ClientIP != "":
		return IPLocation{Locator: s.geo, IP: req.ClientIP}, "geoip"
	default:
		return NoLocator{}, "none"
	}
}

// Get returns a live session and refreshes its expiry.
func (s *SessionService) Get(id string) (*Session, error) {
	v, err := s.sessions.Get(id)
	if err != nil {
		if errors.Is(err, gcache.KeyNotFoundError) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
		}
		return nil, err
	}
	sess := v.(*Session)
	_ = s.sessions.Set(id, sess)
	return sess, nil
}

// Delete ends a session and cancels its in-flight fetches.
func (s *SessionService) Delete(id string) error {
	if !s.sessions.Remove(id) {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return nil
}

// Count returns the number of unexpired sessions.
func (s *SessionService) Count() int {
	return s.sessions.Len(true)
}

// Sweep releases expired sessions. gcache only drops expired entries when
// they are touched, so the server calls this periodically.
func (s *SessionService) Sweep() int {
	n := 0
	for _, key := range s.sessions.Keys(false) {
		if _, err := s.sessions.GetIFPresent(key); errors.Is(err, gcache.KeyNotFoundError) {
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (s *SessionService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Info("expired sessions released", "count", n)
			}
		}
	}
}

// Close releases every session.
func (s *SessionService) Close() {
	s.sessions.Purge()
}
