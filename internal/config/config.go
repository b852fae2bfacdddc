// Package config loads contractgen settings from an optional YAML file
// overlaid by CONTRACTGEN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"contractgen/internal/blob"
	"contractgen/internal/blob/fs"
	"contractgen/internal/client"
	"contractgen/internal/localbackend"
	"contractgen/internal/server"
	"contractgen/internal/store"
	"contractgen/internal/store/sqlite"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONTRACTGEN_"

// Config is the full application configuration.
type Config struct {
	API     API     `yaml:"api"`
	Storage Storage `yaml:"storage"`
	Blob    Blob    `yaml:"blob"`
	Server  Server  `yaml:"server"`
	Log     Log     `yaml:"log"`
	// Fixtures is the YAML file answering data queries in the local engine.
	Fixtures string `yaml:"fixtures"`
}

// API configures the HTTP client.
type API struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	Token    string        `yaml:"token"`
	Username string        `yaml:"username"`
}

// Storage selects the template and history store of the local engine.
type Storage struct {
	Driver      store.Driver `yaml:"driver"`
	SQLitePath  string       `yaml:"sqlitePath"`
	PostgresDSN string       `yaml:"postgresDSN"`
}

// Blob selects the document store of the local engine.
type Blob struct {
	Driver blob.Driver `yaml:"driver"`
	FSRoot string      `yaml:"fsRoot"`
	S3     S3          `yaml:"s3"`
}

// S3 configures the S3 blob driver.
type S3 struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	PathStyle       bool   `yaml:"pathStyle"`
}

// Server configures the serve command.
type Server struct {
	Addr       string   `yaml:"addr"`
	AuthSecret string   `yaml:"authSecret"`
	Origins    []string `yaml:"origins"`
}

// Log configures the logger.
type Log struct {
	Mode string `yaml:"mode"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		API:     API{URL: client.DefaultBaseURL, Timeout: 30 * time.Second},
		Storage: Storage{Driver: store.DriverSQLite, SQLitePath: sqlite.DefaultPath},
		Blob:    Blob{Driver: blob.DriverFilesystem, FSRoot: fs.DefaultRoot},
		Server:  Server{Addr: server.DefaultAddr},
		Log:     Log{Mode: "development"},
	}
}

// Load reads path (skipped when empty) over the defaults and applies
// environment overrides read through getenv. A nil getenv uses os.Getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer func() { _ = f.Close() }()
		if err := decode(f, &cfg); err != nil {
			return Config{}, err
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(EnvPrefix + name)); v != "" {
			*dst = v
		}
	}
	str("API_URL", &c.API.URL)
	str("TOKEN", &c.API.Token)
	str("USERNAME", &c.API.Username)
	if v := strings.TrimSpace(getenv(EnvPrefix + "API_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sAPI_TIMEOUT: %w", EnvPrefix, err)
		}
		c.API.Timeout = d
	}

	if v := strings.TrimSpace(getenv(EnvPrefix + "STORAGE_DRIVER")); v != "" {
		c.Storage.Driver = store.Driver(strings.ToLower(v))
	}
	str("SQLITE_PATH", &c.Storage.SQLitePath)
	str("POSTGRES_DSN", &c.Storage.PostgresDSN)

	if v := strings.TrimSpace(getenv(EnvPrefix + "BLOB_DRIVER")); v != "" {
		c.Blob.Driver = blob.Driver(strings.ToLower(v))
	}
	str("BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	str("BLOB_S3_REGION", &c.Blob.S3.Region)
	str("BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	str("BLOB_S3_ACCESS_KEY_ID", &c.Blob.S3.AccessKeyID)
	str("BLOB_S3_SECRET_ACCESS_KEY", &c.Blob.S3.SecretAccessKey)
	if v := strings.TrimSpace(getenv(EnvPrefix + "BLOB_S3_PATH_STYLE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sBLOB_S3_PATH_STYLE: %w", EnvPrefix, err)
		}
		c.Blob.S3.PathStyle = b
	}

	str("SERVER_ADDR", &c.Server.Addr)
	str("AUTH_SECRET", &c.Server.AuthSecret)
	if v := strings.TrimSpace(getenv(EnvPrefix + "CORS_ORIGINS")); v != "" {
		c.Server.Origins = splitList(v)
	}
	str("LOG_MODE", &c.Log.Mode)
	str("FIXTURES", &c.Fixtures)
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects unknown drivers and incomplete driver settings.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case store.DriverMemory, store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return errors.New("config: s3 blob driver requires a bucket")
		}
	default:
		return fmt.Errorf("config: unknown blob driver %q", c.Blob.Driver)
	}
	if c.API.Timeout < 0 {
		return errors.New("config: api timeout must not be negative")
	}
	return nil
}

// StoreConfig returns the local engine store settings.
func (c Config) StoreConfig() localbackend.StoreConfig {
	return localbackend.StoreConfig{
		Driver:      c.Storage.Driver,
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobConfig returns the blob store settings.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: c.Blob.Driver,
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          c.Blob.S3.Bucket,
			Region:          c.Blob.S3.Region,
			Endpoint:        c.Blob.S3.Endpoint,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
			PathStyle:       c.Blob.S3.PathStyle,
		},
	}
}
