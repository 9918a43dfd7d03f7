package main

import (
	"fmt"
	"log/slog"

	"github.com/suPer8Hu/hackchat/internal/config"
	"github.com/suPer8Hu/hackchat/internal/db"
	"github.com/suPer8Hu/hackchat/internal/persist"
	"github.com/suPer8Hu/hackchat/internal/store/gormstore"
	"github.com/suPer8Hu/hackchat/internal/store/redisstore"
)

// openBackend returns the snapshot backend selected by STORE_DRIVER and a
// func that releases it.
func openBackend(cfg config.Config, logger *slog.Logger) (persist.Backend, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverRedis:
		rs := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKey)
		logger.Info("snapshot backend", "driver", cfg.StoreDriver, "addr", cfg.RedisAddr, "key", cfg.RedisKey)
		return rs, func() { _ = rs.Close() }, nil

	case config.DriverSQLite, config.DriverMySQL:
		gdb, err := db.Connect(cfg.StoreDriver, cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		gs := gormstore.New(gdb, gormstore.DefaultKey)
		if err := gs.Migrate(); err != nil {
			return nil, nil, fmt.Errorf("migrate snapshots: %w", err)
		}
		logger.Info("snapshot backend", "driver", cfg.StoreDriver)
		closeFn := func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return gs, closeFn, nil
	}
	return nil, nil, fmt.Errorf("unsupported STORE_DRIVER=%q", cfg.StoreDriver)
}
