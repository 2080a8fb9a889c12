package http

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/samirrijal/parkpass/internal/core/domain"
	"github.com/samirrijal/parkpass/internal/core/usecases"
	"github.com/samirrijal/parkpass/internal/pkg/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const wsPingInterval = 30 * time.Second

// wsMessage is sent by the client.
type wsMessage struct {
	Action string `json:"action"` // "snapshot"
}

// snapshotMailbox holds the one snapshot waiting to be written. put never
// blocks and never lets an older version replace a newer one, whoever the
// callers are. An equal version is accepted so a client refresh is answered.
type snapshotMailbox struct {
	mu      sync.Mutex
	pending *domain.Snapshot
	high    uint64
	ready   chan struct{}
}

func newSnapshotMailbox() *snapshotMailbox {
	return &snapshotMailbox{ready: make(chan struct{}, 1)}
}

func (m *snapshotMailbox) put(snap domain.Snapshot) {
	m.mu.Lock()
	if snap.Version < m.high {
		m.mu.Unlock()
		return
	}
	m.high = snap.Version
	m.pending = &snap
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// take empties the mailbox.
func (m *snapshotMailbox) take() (domain.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return domain.Snapshot{}, false
	}
	snap := *m.pending
	m.pending = nil
	return snap, true
}

// WebSocketUpgrade rejects plain HTTP requests and resolves the session
// named by ?session= before the upgrade, so unknown sessions get a 404.
func WebSocketUpgrade(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		sess, err := deps.Sessions.Get(c.Query("session"))
		if err != nil {
			return errFromDomain(c, err)
		}
		c.Locals("session", sess)
		return c.Next()
	}
}

// WebSocketHandler streams one session's state changes as SessionEvent
// JSON messages. A slow client only ever gets the latest state: pending
// snapshots are replaced, never queued. The keep-alive ping also keeps
// the session from idling out while the socket is open.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		sess, ok := c.Locals("session").(*usecases.Session)
		if !ok {
			return
		}
		logger := slog.Default().With("session", sess.ID, "remote", c.RemoteAddr().String())
		logger.Debug("ws client connected")

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		// The engine and this goroutine both push; the mailbox orders them.
		mb := newSnapshotMailbox()
		unsubscribe := sess.Engine.Subscribe(mb.put)
		defer unsubscribe()
		mb.put(sess.Engine.Snapshot())

		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(wsPingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-mb.ready:
					snap, ok := mb.take()
					if !ok {
						continue
					}
					if err := writeJSON(domain.NewSessionEvent(sess.ID, snap, time.Now())); err != nil {
						logger.Debug("ws write failed", "error", err)
						return
					}
				case <-ticker.C:
					if _, err := deps.Sessions.Get(sess.ID); err != nil {
						mu.Lock()
						_ = c.WriteMessage(websocket.CloseMessage,
							websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session expired"))
						mu.Unlock()
						return
					}
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			switch m.Action {
			case "snapshot":
				mb.put(sess.Engine.Snapshot())
			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		logger.Debug("ws client disconnected")
	}
}
