package http

import (
	"github.com/nats-io/nats.go"
	"github.com/samirrijal/parkpass/internal/adapters/postgres"
	"github.com/samirrijal/parkpass/internal/adapters/valkey"
	"github.com/samirrijal/parkpass/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
// Everything except Sessions may be nil.
type Dependencies struct {
	Sessions *usecases.SessionService
	Parks    *postgres.ParkRepo // set when parks are served from Postgres
	NATS     *nats.Conn
	DB       *postgres.DB
	Cache    *valkey.Cache
	DocsPath string // OpenAPI document; defaults to api/openapi.yaml
}
