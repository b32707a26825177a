package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"stockroom/internal/config"
	"stockroom/internal/database"
	"stockroom/internal/repository"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// storage holds the collection repository chosen by configuration and the
// connections behind it
type storage struct {
	driver string
	repo   repository.CollectionRepository
	db     *database.Service
	redis  *redis.Client
}

func openStorage(cfg *config.Config, logger *zap.Logger) (*storage, error) {
	st := &storage{driver: cfg.Storage.Driver}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		st.repo = repository.NewMemoryRepository()

	case config.DriverFile:
		st.repo = repository.NewFileRepository(afero.NewOsFs(), cfg.Storage.FileDir, cfg.Storage.Slot)

	case config.DriverRedis:
		client, err := openRedis(cfg.Redis)
		if err != nil {
			return nil, err
		}
		st.redis = client
		st.repo = repository.NewRedisRepository(client, "stockroom:"+cfg.Storage.Slot)

	case config.DriverPostgres, config.DriverSQLite:
		dsn := cfg.Storage.DatabaseURL
		dialect := repository.DialectPostgres
		if cfg.Storage.Driver == config.DriverSQLite {
			dsn = cfg.Storage.SQLitePath
			dialect = repository.DialectSQLite
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}

		db, err := database.Open(cfg.Storage.Driver, dsn)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(db.DB(), db.Dialect(), logger); err != nil {
			_ = db.Close()
			return nil, err
		}
		st.db = db
		st.repo = repository.NewSQLRepository(db.DB(), dialect, cfg.Storage.Slot)

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	logger.Info("Storage ready",
		zap.String("driver", cfg.Storage.Driver),
		zap.String("slot", cfg.Storage.Slot),
	)
	return st, nil
}

func openRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// health reports the state of the storage backend
func (st *storage) health(ctx context.Context) map[string]string {
	if st.db != nil {
		stats := st.db.Health()
		if version, err := database.SchemaVersion(st.db.DB(), st.db.Dialect()); err == nil {
			stats["schema_version"] = strconv.FormatInt(version, 10)
		}
		return stats
	}

	stats := map[string]string{"driver": st.driver, "status": "up"}
	if st.redis != nil {
		if err := st.redis.Ping(ctx).Err(); err != nil {
			stats["status"] = "down"
			stats["error"] = err.Error()
		}
	}
	return stats
}

func (st *storage) close() error {
	var firstErr error
	if st.db != nil {
		if err := st.db.Close(); err != nil {
			firstErr = err
		}
	}
	if st.redis != nil {
		if err := st.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
