package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samirrijal/parkpass/internal/core/domain"
	"github.com/samirrijal/parkpass/internal/core/ports"
)

// IngestOptions controls a catalog copy.
type IngestOptions struct {
	// Geometry downloads every category of every park's detail geometry.
	Geometry    bool
	Concurrency int
	Categories  []domain.Category
}

// IngestReport summarises one run.
type IngestReport struct {
	Parks           int
	Lookups         map[domain.LookupKind]int
	Topologies      int
	Geometries      int
	GeometryMissing int
}

// Ingest copies the catalog from src into store. The park list is
// required; every other dataset is copied when it can be fetched, and
// failures are logged and counted rather than aborting the run.
func Ingest(ctx context.Context, src ports.ParkSource, store ports.ParkStore, opts IngestOptions, logger *slog.Logger) (*IngestReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if len(opts.Categories) == 0 {
		opts.Categories = domain.Categories
	}

	report := &IngestReport{Lookups: make(map[domain.LookupKind]int)}

	parks, err := src.FetchAllParks(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch parks: %w", err)
	}
	if err := store.ReplaceParks(ctx, parks); err != nil {
		return nil, fmt.Errorf("store parks: %w", err)
	}
	report.Parks = len(parks)
	logger.Info("parks stored", "count", len(parks))

	for _, kind := range domain.LookupKinds {
		table, err := src.FetchLookup(ctx, kind)
		if err != nil {
			logger.Warn("lookup fetch failed", "kind", kind, "error", err)
			continue
		}
		if err := store.ReplaceLookup(ctx, kind, table); err != nil {
			return report, fmt.Errorf("store %s lookup: %w", kind, err)
		}
		report.Lookups[kind] = len(table)
	}

	topologies := []struct {
		name  string
		fetch func(context.Context) (domain.TopologyBlob, error)
	}{
		{domain.TopologyParks, src.FetchAllParksTopology},
		{domain.TopologyTrails, src.FetchAllTrailsTopology},
	}
	for _, t := range topologies {
		blob, err := t.fetch(ctx)
		if err != nil {
			logger.Warn("topology fetch failed", "name", t.name, "error", err)
			continue
		}
		if err := store.PutTopology(ctx, t.name, blob); err != nil {
			return report, fmt.Errorf("store %s topology: %w", t.name, err)
		}
		report.Topologies++
	}

	if !opts.Geometry {
		return report, nil
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, opts.Concurrency)
	)
	for _, p := range parks {
		for _, cat := range opts.Categories {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			go func(id domain.ParkID, cat domain.Category) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				fg, err := src.FetchFeatureGeometry(ctx, id, cat)
				if err == nil && fg != nil {
					err = store.PutFeatureGeometry(ctx, fg)
				}
				mu.Lock()
				defer mu.Unlock()
				if err != nil || fg == nil {
					report.GeometryMissing++
					logger.Debug("geometry skipped", "park_id", id, "category", cat, "error", err)
					return
				}
				report.Geometries++
			}(p.ID, cat)
		}
	}
	wg.Wait()

	logger.Info("geometries stored", "stored", report.Geometries, "missing", report.GeometryMissing)
	return report, ctx.Err()
}
