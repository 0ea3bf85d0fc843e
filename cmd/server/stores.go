package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"credential-lifecycle/internal/config"
	"credential-lifecycle/internal/db"
	healthhandler "credential-lifecycle/internal/health/handler"
	identityrepo "credential-lifecycle/internal/identity/repository"
	sessionrepo "credential-lifecycle/internal/session/repository"
)

const connectTimeout = 10 * time.Second

// stores holds the repositories selected by IDENTITY_STORE and SESSION_STORE,
// the pingers that drive health, and the closers run on shutdown.
type stores struct {
	identities identityrepo.Repository
	sessions   sessionrepo.Repository
	pingers    map[string]healthhandler.Pinger
	closers    []func(context.Context) error
}

func (s *stores) close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	s := &stores{pingers: map[string]healthhandler.Pinger{}}
	fail := func(err error) (*stores, error) {
		_ = s.close(context.Background())
		return nil, err
	}

	var pg *sql.DB
	if cfg.UsesPostgres() {
		openCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		conn, err := db.Open(openCtx, cfg.DatabaseURL, db.PoolConfig{MaxOpenConns: 25, MaxIdleConns: 5, ConnMaxLifetime: 30 * time.Minute})
		cancel()
		if err != nil {
			return fail(fmt.Errorf("postgres: %w", err))
		}
		pg = conn
		s.pingers["postgres"] = conn
		s.closers = append(s.closers, func(context.Context) error { return conn.Close() })
		log.Info("postgres connected")
	}

	switch cfg.IdentityStore {
	case config.StorePostgres:
		s.identities = identityrepo.NewPostgresRepository(pg)
	case config.StoreMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return fail(fmt.Errorf("mongo: %w", err))
		}
		s.closers = append(s.closers, client.Disconnect)
		repo := identityrepo.NewMongoRepository(client.Database(cfg.MongoDatabase))
		idxCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err = repo.EnsureIndexes(idxCtx)
		cancel()
		if err != nil {
			return fail(fmt.Errorf("mongo indexes: %w", err))
		}
		s.identities = repo
		s.pingers["mongo"] = healthhandler.PingerFunc(func(ctx context.Context) error { return client.Ping(ctx, nil) })
		log.Info("mongo connected", "database", cfg.MongoDatabase)
	default:
		s.identities = identityrepo.NewMemoryRepository()
		log.Warn("identity store is in-memory; data is lost on restart")
	}

	switch cfg.SessionStore {
	case config.StorePostgres:
		s.sessions = sessionrepo.NewPostgresRepository(pg)
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		s.closers = append(s.closers, func(context.Context) error { return rdb.Close() })
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fail(fmt.Errorf("redis: %w", err))
		}
		s.sessions = sessionrepo.NewRedisRepository(rdb, sessionrepo.DefaultRetention)
		s.pingers["redis"] = healthhandler.PingerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		log.Info("redis connected", "addr", cfg.RedisAddr)
	default:
		s.sessions = sessionrepo.NewMemoryRepository()
		log.Warn("session store is in-memory; sessions are lost on restart")
	}
	return s, nil
}
