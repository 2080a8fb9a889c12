package usecases

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bluele/gcache"

	"github.com/samirrijal/parkpass/internal/core/domain"
	"github.com/samirrijal/parkpass/internal/pkg/metrics"
)

// OtherFilter is the tally key for filter tags no lookup table knows.
// Tags come straight from clients, so unknown ones share one metric label.
const OtherFilter = "other"

type sessionMark struct {
	version   uint64
	filter    string
	selection uint64
}

// ActivityTracker tallies what users do from the session event stream.
// Events carry whole snapshots, so it remembers the last event seen per
// session and counts only transitions. Redelivered or out-of-order events
// are ignored.
type ActivityTracker struct {
	logger *slog.Logger
	seen   gcache.Cache

	mu         sync.Mutex
	filters    map[string]int
	selections map[domain.ParkID]int
}

// NewActivityTracker creates a tracker remembering up to size sessions.
func NewActivityTracker(size int, ttl time.Duration, logger *slog.Logger) *ActivityTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityTracker{
		logger:     logger,
		seen:       gcache.New(size).LRU().Expiration(ttl).Build(),
		filters:    make(map[string]int),
		selections: make(map[domain.ParkID]int),
	}
}

// Handle records one event. It never fails; the signature matches the
// subscriber callback.
func (t *ActivityTracker) Handle(ctx context.Context, ev *domain.SessionEvent) error {
	var prev sessionMark
	if v, err := t.seen.Get(ev.SessionID); err == nil {
		prev = v.(sessionMark)
		if ev.Version <= prev.version {
			return nil
		}
	} else {
		metrics.ActivitySessionsSeen.Inc()
	}

	next := sessionMark{version: ev.Version, selection: ev.Selection.Generation}
	if ev.Filter != nil {
		next.filter = *ev.Filter
	}
	_ = t.seen.Set(ev.SessionID, next)

	t.mu.Lock()
	defer t.mu.Unlock()

	if next.filter != "" && next.filter != prev.filter {
		key := next.filter
		if !ev.FilterKnown {
			key = OtherFilter
		}
		t.filters[key]++
		metrics.ActivityFilters.WithLabelValues(key).Inc()
	}
	if id, ok := ev.Selection.Selected(); ok && next.selection != prev.selection {
		t.selections[id]++
		metrics.ActivitySelections.WithLabelValues(id.String()).Inc()
		t.logger.Debug("park selected", "session", ev.SessionID, "park_id", id)
	}
	return nil
}

// TagCount is one row of a popularity ranking.
type TagCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// TopFilters returns the n most used filter tags, ties broken by name.
func (t *ActivityTracker) TopFilters(n int) []TagCount {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TagCount, 0, len(t.filters))
	for tag, c := range t.filters {
		out = append(out, TagCount{Key: tag, Count: c})
	}
	return topN(out, n)
}

// TopParks returns the n most selected parks, ties broken by id.
func (t *ActivityTracker) TopParks(n int) []TagCount {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TagCount, 0, len(t.selections))
	for id, c := range t.selections {
		out = append(out, TagCount{Key: id.String(), Count: c})
	}
	return topN(out, n)
}

func topN(rows []TagCount, n int) []TagCount {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Key < rows[j].Key
	})
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}
