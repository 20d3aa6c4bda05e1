package cli

import (
	"encoding/base64"
	"fmt"
	"path/filepath"

	"github.com/aretw0/proxyshape/pkg/persistence/middleware"
)

// Store backends selectable with --store.
const (
	StoreFile   = "file"
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Options is the configuration shared by every proxyshape command.
type Options struct {
	StagePath string // YAML stage description
	ProxyID   string
	Dir       string // project directory; snapshots live under <Dir>/.proxyshape/snapshots
	Store     string
	RedisURL  string
	LogLevel  string
	LogJSON   bool

	// EncryptionKey and FallbackKeys are base64 encoded AES-256 keys. When
	// EncryptionKey is set, snapshots are sealed before they reach the store.
	EncryptionKey string
	FallbackKeys  []string
}

// Validate checks flag combinations.
func (o Options) Validate() error {
	switch o.Store {
	case StoreFile, StoreMemory:
	case StoreRedis:
		if o.RedisURL == "" {
			return fmt.Errorf("--store=redis requires --redis")
		}
	default:
		return fmt.Errorf("unknown store %q: use file, memory or redis", o.Store)
	}
	if o.ProxyID == "" {
		return fmt.Errorf("--proxy must not be empty")
	}
	return nil
}

// SnapshotDir is where the file store keeps snapshots.
func (o Options) SnapshotDir() string {
	dir := o.Dir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, ".proxyshape", "snapshots")
}

// Encryption returns the snapshot encryption config, or nil when disabled.
func (o Options) Encryption() (*middleware.EncryptionConfig, error) {
	if o.EncryptionKey == "" {
		return nil, nil
	}
	active, err := decodeKey(o.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	cfg := &middleware.EncryptionConfig{ActiveKey: active}
	for _, k := range o.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, fmt.Errorf("invalid fallback key: %w", err)
		}
		cfg.FallbackKeys = append(cfg.FallbackKeys, key)
	}
	return cfg, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key is %d bytes, want 32", len(key))
	}
	return key, nil
}
