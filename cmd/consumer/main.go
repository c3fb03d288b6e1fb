package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/segmentio/kafka-go"

	"tradeview/configs"
	"tradeview/internal/consumer"
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

	startOffset := kafka.FirstOffset
	if cfg.KafkaOffsetReset == "latest" {
		startOffset = kafka.LastOffset
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{cfg.KafkaBroker},
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		StartOffset:    startOffset,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,    // commits are issued manually after durable writes
	})

	svc := consumer.New(reader, store, log, consumer.Config{
		Topic:        cfg.KafkaTopic,
		GroupID:      cfg.KafkaGroupID,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	})

	log.WithField("topic", cfg.KafkaTopic).Info("Consumer started")

	if err := svc.Start(ctx); err != nil {
		log.WithError(err).Error("Consumer stopped with error")
		os.Exit(1)
	}

	log.Info("Consumer shutdown complete")
}
