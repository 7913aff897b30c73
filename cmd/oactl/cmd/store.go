package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/oaclient/internal/config"
	"github.com/jmcleod/oaclient/storage"
	boltstore "github.com/jmcleod/oaclient/storage/bbolt"
	"github.com/jmcleod/oaclient/storage/file"
	"github.com/jmcleod/oaclient/storage/memory"
	redisstore "github.com/jmcleod/oaclient/storage/redis"
)

const (
	sessionDBName = "session.db"
	sessionDir    = "sessions"

	// lockTimeout bounds how long a second oactl process waits for the
	// bbolt file lock held by another.
	lockTimeout = 2 * time.Second
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore opens the session mirror selected by cfg.Store. The returned
// closer releases the backend and must be called once the command is done.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, io.Closer, error) {
	switch cfg.Store {
	case config.BackendBBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating data dir: %w", err)
		}
		s, err := boltstore.NewStoreFromFile(
			filepath.Join(cfg.DataDir, sessionDBName),
			cfg.Namespace,
			&bbolt.Options{Timeout: lockTimeout},
		)
		if err != nil {
			return nil, nil, fmt.Errorf("opening session database: %w", err)
		}
		return s, s, nil

	case config.BackendFile:
		s, err := file.NewStore(filepath.Join(cfg.DataDir, sessionDir, cfg.Namespace))
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser{}, nil

	case config.BackendRedis:
		s, err := redisstore.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			storage.DefaultNamespace+":"+cfg.Namespace)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	case config.BackendMemory:
		return memory.NewStore(), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}
