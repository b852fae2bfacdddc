// Package blob selects a blob storage driver and names the keys under which
// template documents and generated contracts are stored.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"

	"contractgen/internal/blob/core"
	"contractgen/internal/blob/fs"
	"contractgen/internal/blob/memory"
	"contractgen/internal/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// S3Config configures the S3 driver.
	S3Config = s3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound   = core.ErrNotFound
	ErrExists     = core.ErrExists
	ErrInvalidKey = core.ErrInvalidKey
)

// Config selects and configures a driver.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open builds the configured store. An empty driver means the filesystem.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// AssetKey is the key of an uploaded template document.
func AssetKey(uploadID, filename string) string {
	return path.Join("templates", uploadID, path.Base(filename))
}

// ContractKey is the key of one generated contract version.
func ContractKey(templateID, hash string, version int) string {
	return path.Join("contracts", templateID, hash, "v"+strconv.Itoa(version)+".json")
}

// ReadAll fetches a whole blob.
func ReadAll(ctx context.Context, s Store, key string) (Info, []byte, error) {
	info, rc, err := s.Get(ctx, key)
	if err != nil {
		return Info{}, nil, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return Info{}, nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return info, data, nil
}

// PutBytes stores data under key.
func PutBytes(ctx context.Context, s Store, key string, data []byte, opts PutOptions) (Info, error) {
	return s.Put(ctx, key, bytes.NewReader(data), opts)
}
