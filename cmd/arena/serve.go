package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	cronrunner "tradingarena/internal/cron"
	"tradingarena/internal/handler"
	"tradingarena/internal/logger"
	"tradingarena/internal/middleware"

	_ "tradingarena/docs"
)

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return err
	}
	defer a.close()

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS())
	engine.Use(middleware.RequireBearer(os.Getenv(cfg.Server.APITokenEnv)))
	engine.Use(middleware.AuditWrites(log))

	healthHandler := &handler.HealthHandler{Store: strings.ToLower(cfg.DB.Driver), Checks: a.readiness()}
	healthHandler.Register(engine)
	metricsHandler := &handler.MetricsHandler{}
	metricsHandler.Register(engine)

	tradingHandler := &handler.TradingHandler{Cycle: a.cycle, Logger: log}
	tradingHandler.Register(engine)
	marketHandler := &handler.MarketHandler{Feed: a.feed, Stream: a.stream}
	marketHandler.Register(engine)
	tradesHandler := &handler.TradesHandler{Repo: a.store, Logger: log}
	tradesHandler.Register(engine)
	weightsHandler := &handler.WeightsHandler{Repo: a.store, Logger: log}
	weightsHandler.Register(engine)
	debateHandler := &handler.DebateHandler{Repo: a.store, Logger: log}
	debateHandler.Register(engine)
	streamHandler := &handler.StreamHandler{Hub: a.hub, AllowAnyOrigin: strings.EqualFold(cfg.App.Env, "dev"), Logger: log}
	streamHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	cronRunner := cronrunner.New(log, ctx)
	if _, err := cronRunner.Add("price_stream", cfg.Stream.PriceInterval, func(ctx context.Context) {
		a.stream.Tick(ctx)
	}); err != nil {
		log.Error("schedule price stream failed", zap.Error(err))
		return err
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := a.cycle.Stop(shutdownCtx); err != nil {
		log.Warn("stop cycle on shutdown failed", zap.Error(err))
	}
	a.hub.Close()
	return srv.Shutdown(shutdownCtx)
}
