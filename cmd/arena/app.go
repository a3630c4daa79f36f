package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tradingarena/internal/broadcast"
	"tradingarena/internal/cache"
	"tradingarena/internal/config"
	"tradingarena/internal/cycle"
	"tradingarena/internal/db"
	"tradingarena/internal/decision"
	"tradingarena/internal/handler"
	"tradingarena/internal/marketdata"
	"tradingarena/internal/repository"
	gormrepository "tradingarena/internal/repository/gorm"
	"tradingarena/internal/repository/memory"
	"tradingarena/internal/service"
	"tradingarena/internal/weights"
)

// app holds every long-lived component of one process.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	dbConn *db.DB
	store  repository.Repository
	quotes cache.Store
	hub    *broadcast.Hub
	feed   *marketdata.Feed
	stream *service.PriceStream
	cycle  *cycle.Orchestrator
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store

	chatModels := decision.NewChatModels(ctx, cfg.Agents, logger)
	proposer := decision.NewSource(chatModels, cfg.Agents.CallTimeout, logger)

	a.hub = broadcast.NewHub(cfg.Broadcast.Buffer, logger)
	a.quotes = cache.New(cfg.Cache)
	a.feed = marketdata.New(cfg.Market, a.quotes, cfg.Cache.QuoteTTL, logger)
	a.stream = service.NewPriceStream(a.feed, a.hub, cfg.Cycle.DefaultTicker, logger)

	a.cycle = cycle.New(cfg.Cycle, cycle.Deps{
		Repo:     store,
		Proposer: proposer,
		Quotes:   a.feed,
		Events:   a.hub,
		Adapter:  &weights.Adapter{Repo: store, Logger: logger, Policy: cfg.Weights},
		Tickers:  a.stream,
		Logger:   logger,
	})
	a.hub.SetSnapshot(a.cycle.Snapshot)
	return a, nil
}

func (a *app) openStore(ctx context.Context) (repository.Repository, error) {
	switch strings.ToLower(strings.TrimSpace(a.cfg.DB.Driver)) {
	case "", "memory":
		a.logger.Info("using in-memory store")
		return memory.New(), nil
	case "postgres":
		conn, err := db.Open(a.cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		a.dbConn = conn
		if err := db.AutoMigrate(conn); err != nil {
			a.close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
		store := gormrepository.New(conn.Gorm)
		if err := store.Seed(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("seed store: %w", err)
		}
		a.logger.Info("using postgres store")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", a.cfg.DB.Driver)
	}
}

// readiness lists the external dependencies /readyz probes.
func (a *app) readiness() []handler.ReadinessCheck {
	var checks []handler.ReadinessCheck
	if a.dbConn != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "postgres", Ping: a.dbConn.Ping})
	}
	if p, ok := a.quotes.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Ping: p.Ping})
	}
	return checks
}

func (a *app) close() {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.dbConn != nil {
		if err := db.Close(a.dbConn); err != nil {
			a.logger.Warn("db close failed", zap.Error(err))
		}
	}
}
