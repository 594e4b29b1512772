package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Env != "local" {
		t.Errorf("Expected env 'local', got %s", cfg.Env)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Expected addr 0.0.0.0:8080, got %s", cfg.Addr())
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "formlink.db" {
		t.Errorf("Unexpected database config %+v", cfg.Database)
	}
	if cfg.Uploads.MaxBytes != 50<<20 {
		t.Errorf("Expected 50 MiB upload cap, got %d", cfg.Uploads.MaxBytes)
	}
	if cfg.JWT.TTL != 24*time.Hour {
		t.Errorf("Expected 24h token ttl, got %s", cfg.JWT.TTL)
	}
	if cfg.Links.PerPage != 8 {
		t.Errorf("Expected 8 links per page, got %d", cfg.Links.PerPage)
	}
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `
env: prod
listen:
  port: "9090"
database:
  driver: postgres
  dsn: "host=db user=formlink"
uploads:
  driver: minio
minio:
  endpoint: "minio:9000"
  bucket: photos
redis:
  addr: "redis:6379"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Env != "prod" {
		t.Errorf("Expected env 'prod', got %s", cfg.Env)
	}
	if cfg.Listen.Port != "7070" {
		t.Errorf("Expected env to override port, got %s", cfg.Listen.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Expected postgres driver, got %s", cfg.Database.Driver)
	}
	if cfg.Minio.Endpoint != "minio:9000" || cfg.Minio.Bucket != "photos" {
		t.Errorf("Unexpected minio config %+v", cfg.Minio)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Errorf("Expected redis addr, got %s", cfg.Redis.Addr)
	}
}

func TestLoadMissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("FORMLINK_DB_DSN", "/tmp/other.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.DSN != "/tmp/other.db" {
		t.Errorf("Expected dsn from env, got %s", cfg.Database.DSN)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown db driver", "FORMLINK_DB_DRIVER", "mysql"},
		{"unknown upload driver", "FORMLINK_UPLOAD_DRIVER", "s3"},
		{"minio without endpoint", "FORMLINK_UPLOAD_DRIVER", "minio"},
		{"zero upload cap", "FORMLINK_UPLOAD_MAX_BYTES", "0"},
		{"zero page size", "FORMLINK_LINKS_PER_PAGE", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(""); err == nil {
				t.Errorf("Expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}
