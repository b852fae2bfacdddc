package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"contractgen/internal/blob"
	"contractgen/internal/store"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contractgen.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", env(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	if cfg.API.URL != "http://localhost:3000/api" || cfg.API.Timeout != 30*time.Second {
		t.Fatalf("unexpected api defaults %+v", cfg.API)
	}
	if cfg.Storage.Driver != store.DriverSQLite || cfg.Blob.Driver != blob.DriverFilesystem || cfg.Server.Addr != ":3000" {
		t.Fatalf("unexpected driver defaults %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
api:
  url: https://contracts.example.com/api
  timeout: 5s
storage:
  driver: memory
blob:
  driver: s3
  s3:
    bucket: from-file
    region: sa-east-1
log:
  mode: production
`)
	cfg, err := Load(path, env(map[string]string{
		"CONTRACTGEN_TOKEN":              "tok",
		"CONTRACTGEN_BLOB_S3_BUCKET":     "from-env",
		"CONTRACTGEN_BLOB_S3_PATH_STYLE": "true",
		"CONTRACTGEN_CORS_ORIGINS":       "http://a, ,http://b",
		"CONTRACTGEN_STORAGE_DRIVER":     "Postgres",
		"CONTRACTGEN_POSTGRES_DSN":       "postgres://db/contracts",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.URL != "https://contracts.example.com/api" || cfg.API.Timeout != 5*time.Second || cfg.API.Token != "tok" {
		t.Fatalf("unexpected api %+v", cfg.API)
	}
	if cfg.Storage.Driver != store.DriverPostgres || cfg.StoreConfig().PostgresDSN != "postgres://db/contracts" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	bc := cfg.BlobConfig()
	if bc.Driver != blob.DriverS3 || bc.S3.Bucket != "from-env" || bc.S3.Region != "sa-east-1" || !bc.S3.PathStyle {
		t.Fatalf("unexpected blob config %+v", bc)
	}
	if diff := cmp.Diff([]string{"http://a", "http://b"}, cfg.Server.Origins); diff != "" {
		t.Fatalf("origins (-want +got):\n%s", diff)
	}
	if cfg.Log.Mode != "production" {
		t.Fatalf("unexpected log mode %q", cfg.Log.Mode)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]struct {
		file string
		env  map[string]string
		want string
	}{
		"unknown field":   {file: "nope: 1\n", want: "decode config"},
		"bad timeout":     {env: map[string]string{"CONTRACTGEN_API_TIMEOUT": "soon"}, want: "API_TIMEOUT"},
		"bad path style":  {env: map[string]string{"CONTRACTGEN_BLOB_S3_PATH_STYLE": "maybe"}, want: "PATH_STYLE"},
		"unknown storage": {env: map[string]string{"CONTRACTGEN_STORAGE_DRIVER": "mongo"}, want: "unknown storage driver"},
		"unknown blob":    {env: map[string]string{"CONTRACTGEN_BLOB_DRIVER": "ftp"}, want: "unknown blob driver"},
		"s3 no bucket":    {env: map[string]string{"CONTRACTGEN_BLOB_DRIVER": "s3"}, want: "requires a bucket"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			path := ""
			if tc.file != "" {
				path = writeFile(t, tc.file)
			}
			_, err := Load(path, env(tc.env))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), env(nil)); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestEmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, ""), env(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":3000" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
}
