package natsadapter

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/parkpass/internal/core/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Subjects and stream for session events.
const (
	SessionStream        = "PARK_SESSIONS"
	SessionSubjectPrefix = "parks.session."
	SessionSubjectAll    = SessionSubjectPrefix + ">"
)

// SessionSubject returns the subject a session's snapshots publish on.
func SessionSubject(sessionID string) string {
	return SessionSubjectPrefix + sessionID
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream(nats.PublishAsyncMaxPending(4096))
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := nats.StreamConfig{
		Name:      SessionStream,
		Subjects:  []string{SessionSubjectAll},
		Retention: nats.LimitsPolicy,
		MaxAge:    1 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishSnapshot publishes asynchronously so engine observers never wait
// on a broker round trip.
func (p *Publisher) PublishSnapshot(ctx context.Context, sessionID string, snap domain.Snapshot) error {
	data, err := json.Marshal(domain.NewSessionEvent(sessionID, snap, time.Now()))
	if err != nil {
		return err
	}
	_, err = p.js.PublishAsync(SessionSubject(sessionID), data)
	return err
}

// Conn exposes the underlying connection for health checks.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection.
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
