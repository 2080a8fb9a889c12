package config

import (
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("parkpass-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Source.Kind != SourceHTTP {
		t.Errorf("expected http source by default, got %q", cfg.Source.Kind)
	}
	if cfg.Telemetry.ServiceName != "parkpass-test" {
		t.Errorf("expected service name default, got %q", cfg.Telemetry.ServiceName)
	}
	if cfg.Session.TTL != 1800 || cfg.Cache.LRUSize != 512 {
		t.Errorf("unexpected session/cache defaults %+v %+v", cfg.Session, cfg.Cache)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PARKPASS_SOURCE_KIND", "postgres")
	t.Setenv("PARKPASS_SESSION_MAX", "5")

	cfg, err := Load("parkpass-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Source.Kind != SourcePostgres {
		t.Errorf("expected postgres source, got %q", cfg.Source.Kind)
	}
	if cfg.Session.Max != 5 {
		t.Errorf("expected session.max 5, got %d", cfg.Session.Max)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 0, ReadTimeout: 1, WriteTimeout: 1},
		Source: SourceConfig{Kind: "ftp", Timeout: 1},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"server.port", "source.kind", "database.host", "session.ttl", "cache.lru_size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in error:\n%s", want, err)
		}
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: 5432, DBName: "db", SSLMode: "disable"}
	if got := d.DSN(); got != "postgres://u:p@h:5432/db?sslmode=disable" {
		t.Errorf("unexpected dsn %s", got)
	}
}
