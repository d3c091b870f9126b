package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Drewww17/m2-sa-luminarias/internal/config"
	"github.com/Drewww17/m2-sa-luminarias/internal/domain/auditlog"
	"github.com/Drewww17/m2-sa-luminarias/internal/domain/scan"
	"github.com/Drewww17/m2-sa-luminarias/internal/domain/user"
	"github.com/Drewww17/m2-sa-luminarias/internal/platform/db"
	"github.com/Drewww17/m2-sa-luminarias/internal/platform/kv"
)

// stores bundles the repositories of one backend.
type stores struct {
	driver string
	scans  scan.Repository
	users  user.Repository
	audit  auditlog.Repository
	pinger db.Pinger
	pool   *pgxpool.Pool
	close  func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
			AppName:  "dfu-server",
		})
		if err != nil {
			return nil, err
		}
		return pgStores(pool), nil
	case config.StoreLevelDB:
		store, err := kv.Open(cfg.LevelDBPath)
		if err != nil {
			return nil, err
		}
		return levelStores(store), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func pgStores(pool *pgxpool.Pool) *stores {
	return &stores{
		driver: config.StorePostgres,
		scans:  scan.NewRepoPG(pool),
		users:  user.NewRepoPG(pool),
		audit:  auditlog.NewRepoPG(pool),
		pinger: pool,
		pool:   pool,
		close:  pool.Close,
	}
}

func levelStores(store *kv.Store) *stores {
	return &stores{
		driver: config.StoreLevelDB,
		scans:  scan.NewRepoLevel(store),
		users:  user.NewRepoLevel(store),
		audit:  auditlog.NewRepoLevel(store),
		pinger: store,
		close:  func() { _ = store.Close() },
	}
}
