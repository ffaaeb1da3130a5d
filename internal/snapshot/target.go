// Package snapshot persists the embedded engine's full binary image and
// schedules when those writes happen. A snapshot is one opaque blob keyed
// by a fixed name, read whole and written whole; there is no incremental
// diffing.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/keeperhq/stockpile/pkg/types"
)

// Target stores and retrieves the snapshot blob.
type Target interface {
	// Load returns the stored blob, or (nil, nil) when no snapshot exists.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the stored blob.
	Save(ctx context.Context, data []byte) error

	// Name identifies the target in logs.
	Name() string

	// Close releases any connection the target holds.
	Close() error
}

// FileTarget keeps the snapshot as a single file under the data
// directory, written atomically via a temp file and rename.
type FileTarget struct {
	path string
}

// NewFileTarget creates the data directory if needed and returns a target
// for dir/key.
func NewFileTarget(dir, key string) (*FileTarget, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileTarget{path: filepath.Join(dir, key)}, nil
}

func (t *FileTarget) Name() string { return "file:" + t.path }

// Close is a no-op; the file is opened per call.
func (t *FileTarget) Close() error { return nil }

func (t *FileTarget) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

func (t *FileTarget) Save(_ context.Context, data []byte) error {
	tmp := t.path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot temp: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// RedisTarget keeps the snapshot under a single key in a redis-compatible
// block store. It is the fallback when no usable data directory exists.
type RedisTarget struct {
	client *redis.Client
	key    string
}

// NewRedisTarget connects to addr and verifies it answers a ping.
func NewRedisTarget(ctx context.Context, addr, key string) (*RedisTarget, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping block store: %w", err)
	}
	return &RedisTarget{client: client, key: key}, nil
}

func (t *RedisTarget) Name() string { return "redis:" + t.key }

// Close releases the underlying connection pool.
func (t *RedisTarget) Close() error { return t.client.Close() }

func (t *RedisTarget) Load(ctx context.Context) ([]byte, error) {
	data, err := t.client.Get(ctx, t.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return data, nil
}

func (t *RedisTarget) Save(ctx context.Context, data []byte) error {
	if err := t.client.Set(ctx, t.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Resolve picks the persistence target for config: the data-directory
// file first, the redis block store second. Both failing leaves the
// engine memory-only, which is logged but not an error; a transient
// storage problem must never block an in-memory write path.
func Resolve(ctx context.Context, config types.Config, log *zap.Logger) Target {
	key := config.SnapshotKeyOrDefault()

	if config.DataDir != "" {
		t, err := NewFileTarget(config.DataDir, key)
		if err == nil {
			return t
		}
		log.Warn("file snapshot target unavailable", zap.String("dir", config.DataDir), zap.Error(err))
	}

	if config.RedisAddr != "" {
		t, err := NewRedisTarget(ctx, config.RedisAddr, key)
		if err == nil {
			return t
		}
		log.Warn("redis snapshot target unavailable", zap.String("addr", config.RedisAddr), zap.Error(err))
	}

	log.Warn("no snapshot target available, running memory-only")
	return nil
}
