package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"watch-sync-service/internal/api"
	"watch-sync-service/internal/config"
	"watch-sync-service/internal/database"
	"watch-sync-service/internal/logger"
	"watch-sync-service/internal/metadata"
	"watch-sync-service/internal/store"
	"watch-sync-service/internal/sync"
	"watch-sync-service/internal/tracker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load Config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format, logger.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting Watch Sync Service", zap.String("driver", cfg.Database.Driver))

	// Init Store
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to open database", zap.Error(err))
	}
	recordStore := store.NewSQLStore(db)
	defer recordStore.Close()

	// Init remote services
	trackerClient := tracker.NewClient(cfg.Tracker.BaseURL, cfg.Tracker.ClientID, cfg.Tracker.GetTimeout(), cfg.Tracker.MaxRetries)

	var meta sync.MetadataProvider
	if cfg.Metadata.APIKey != "" {
		tmdb, err := metadata.NewTMDBClient(cfg.Metadata.BaseURL, cfg.Metadata.APIKey, cfg.Metadata.Language, cfg.Metadata.CacheSize, cfg.Metadata.GetTimeout())
		if err != nil {
			logger.Log.Fatal("Failed to init metadata client", zap.Error(err))
		}
		meta = tmdb
	} else {
		logger.Log.Warn("No metadata API key configured, imports will use tracker titles")
	}

	statuses := make([]tracker.Status, 0, len(cfg.Sync.Statuses))
	for _, s := range cfg.Sync.Statuses {
		st, err := tracker.ParseStatus(s)
		if err != nil {
			logger.Log.Fatal("Invalid sync status", zap.String("status", s), zap.Error(err))
		}
		statuses = append(statuses, st)
	}

	// Init Sync Manager
	syncer := sync.NewSyncer(recordStore, trackerClient, meta, sync.Options{
		Statuses: statuses,
		Workers:  cfg.Sync.Workers,
	})
	syncManager := sync.NewManager(cfg.Sync, syncer, recordStore)

	scheduler := sync.NewScheduler(cfg.Scheduler, syncManager)
	if err := scheduler.Start(); err != nil {
		logger.Log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Init API
	handler := api.NewHandler(syncManager, cfg.Server)
	router := handler.Routes()

	// Start Server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Error("Server shutdown failed", zap.Error(err))
	}
	scheduler.Stop()
}
