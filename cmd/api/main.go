package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chdsbd/recipeyak/internal/app"
	"github.com/chdsbd/recipeyak/internal/cache"
	"github.com/chdsbd/recipeyak/internal/config"
	"github.com/chdsbd/recipeyak/internal/export"
	"github.com/chdsbd/recipeyak/internal/search"
	"github.com/chdsbd/recipeyak/internal/store"
	"github.com/chdsbd/recipeyak/internal/upload"
)

func main() {
	cfg := config.Load()
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	dataStore := store.NewPostgresStore(db)
	opts := app.Options{
		Exporter:  export.NewService(),
		Logger:    logger,
		PublicURL: cfg.PublicURL,
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	opts.Search = search.NewService(meiliClient, pgfts, logger)

	if strings.TrimSpace(cfg.RedisURL) != "" {
		recipeCache, err := cache.NewRedisStore(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			logger.Warn("redis unavailable, serving recipes uncached", zap.Error(err))
		} else {
			defer recipeCache.Close()
			opts.Cache = recipeCache
		}
	}

	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		uploads, err := upload.New(upload.Options{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			TTL:       cfg.UploadTTL,
		})
		if err != nil {
			logger.Warn("image uploads disabled", zap.Error(err))
		} else {
			opts.Uploads = uploads
		}
	}

	service := app.New(dataStore, opts)
	if err := service.Bootstrap(ctx); err != nil {
		logger.Warn("bootstrap error (will retry on next restart)", zap.Error(err))
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("recipe API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
