package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradeview/configs"
	"tradeview/internal/history"
	"tradeview/internal/liveview"
	"tradeview/internal/storage"
	"tradeview/pkg/logger"
)

func main() {
	cfg, err := configs.Load()
	if err != nil {
		logger.New("info").WithError(err).Fatal("Failed to load configuration")
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewPostgresStore(ctx, storage.PostgresConfig{
		DSN:             cfg.DatabaseURL,
		MaxConns:        cfg.DatabaseMaxConns,
		MinConns:        cfg.DatabaseMinConns,
		MaxConnLifetime: cfg.DatabaseMaxConnLife,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to store")
	}
	defer store.Close()

	historySvc := history.NewService(store)
	hub := liveview.NewHub(log)

	controller := liveview.NewController(historySvc, hub, log, liveview.Config{
		Interval:      cfg.RefreshInterval,
		WindowSize:    cfg.WindowSize,
		Symbols:       cfg.SupportedSymbols,
		DefaultSymbol: cfg.DefaultSymbol,
		DefaultLimit:  cfg.DefaultLimit,
	})

	router := liveview.NewRouter(&liveview.RouterConfig{
		Controller: controller,
		Hub:        hub,
		History:    historySvc,
		Store:      store,
		WindowSize: cfg.WindowSize,
		Logger:     log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := controller.Run(ctx); err != nil {
			log.WithError(err).Error("Live view stopped with error")
		}
	}()

	go func() {
		log.WithField("port", cfg.ServerPort).Info("Viewer listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down viewer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP shutdown failed")
	}

	log.Info("Viewer shutdown complete")
}
