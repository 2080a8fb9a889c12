//go:build integration
// +build integration

package http_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	handler "github.com/samirrijal/parkpass/internal/adapters/http"
	"github.com/samirrijal/parkpass/internal/adapters/postgres"
	"github.com/samirrijal/parkpass/internal/core/domain"
	"github.com/samirrijal/parkpass/internal/core/usecases"
	"github.com/samirrijal/parkpass/internal/pkg/config"
)

// setupTestDB connects to the test database. Migrations must already be applied.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("parkpass-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

// seedCatalog loads a small catalog through the ingestor's store interface.
func seedCatalog(t *testing.T, repo *postgres.ParkRepo) {
	ctx := context.Background()
	parks := []domain.Park{
		{ID: 101, Name: "Integration North", Center: domain.NewCoordinate(44, -72)},
		{ID: 102, Name: "Integration South", Center: domain.NewCoordinate(40, -74)},
	}
	if err := repo.ReplaceParks(ctx, parks); err != nil {
		t.Fatalf("seed parks: %v", err)
	}
	if err := repo.ReplaceLookup(ctx, domain.LookupAmenity, domain.LookupTable{"restroom": {102}}); err != nil {
		t.Fatalf("seed amenity lookup: %v", err)
	}
	if err := repo.ReplaceLookup(ctx, domain.LookupFacility, domain.LookupTable{"dock": {101}}); err != nil {
		t.Fatalf("seed facility lookup: %v", err)
	}
	for _, name := range []string{postgres.TopologyParks, postgres.TopologyTrails} {
		if err := repo.PutTopology(ctx, name, domain.TopologyBlob(`{"type":"Topology","objects":{}}`)); err != nil {
			t.Fatalf("seed topology %s: %v", name, err)
		}
	}
	err := repo.PutFeatureGeometry(ctx, &domain.FeatureGeometry{
		ParkID:       102,
		Category:     domain.CategoryPark,
		Payload:      json.RawMessage(`{"type":"FeatureCollection","features":[]}`),
		FeatureCount: 0,
	})
	if err != nil {
		t.Fatalf("seed geometry: %v", err)
	}
}

// TestSession_Integration_PostgresSource drives a session end to end over
// the Postgres-backed source.
func TestSession_Integration_PostgresSource(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	repo := postgres.NewParkRepo(db)
	seedCatalog(t, repo)

	sessions := usecases.NewSessionService(repo, nil, nil, usecases.SessionConfig{}, quietLogger)
	t.Cleanup(sessions.Close)
	deps := &handler.Dependencies{Sessions: sessions, Parks: repo, DB: db}
	app := setupApp(deps)

	id := createSession(t, app, deps, "")

	_, b := do(t, app, "POST", "/v1/sessions/"+id+"/filter", `{"tag":"restroom"}`)
	var result struct {
		Visible domain.VisibleSet `json:"visible"`
	}
	decode(t, b, &result)
	if len(result.Visible.IDs) != 1 || result.Visible.IDs[0] != 102 {
		t.Fatalf("expected park 102, got %v", result.Visible.IDs)
	}

	resp, b := do(t, app, "POST", "/v1/sessions/"+id+"/selection", `{"park_id":"102"}`)
	if resp.StatusCode != 202 {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, b)
	}
	waitSession(t, deps, id)

	resp, _ = do(t, app, "GET", "/v1/sessions/"+id+"/features/park", "")
	if resp.StatusCode != 200 {
		t.Errorf("expected stored park geometry, got %d", resp.StatusCode)
	}
	resp, _ = do(t, app, "GET", "/v1/sessions/"+id+"/features/trail", "")
	if resp.StatusCode != 404 {
		t.Errorf("expected missing trail geometry to stay unloaded, got %d", resp.StatusCode)
	}

	resp, b = do(t, app, "GET", "/v1/ready", "")
	if resp.StatusCode != 200 {
		t.Errorf("expected ready, got %d: %s", resp.StatusCode, b)
	}

	_, b = do(t, app, "GET", "/v1/status", "")
	var status struct {
		Catalog map[string]int `json:"catalog"`
	}
	decode(t, b, &status)
	if status.Catalog["parks"] < 2 {
		t.Errorf("expected stored parks in status, got %v", status.Catalog)
	}
}
