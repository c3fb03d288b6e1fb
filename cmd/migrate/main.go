package main

import (
	"flag"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"tradeview/configs"
	"tradeview/internal/migrations"
	"tradeview/pkg/logger"
)

func main() {
	down := flag.Bool("down", false, "Roll back the most recent migration instead of migrating up")
	flag.Parse()

	cfg, err := configs.Load()
	if err != nil {
		logger.New("info").WithError(err).Fatal("Failed to load configuration")
	}
	log := logger.New(cfg.LogLevel)

	db, err := goose.OpenDBWithDriver("pgx", cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to open database")
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		log.WithError(err).Fatal("Failed to set dialect")
	}

	if *down {
		log.Info("Rolling back one migration...")
		if err := goose.Down(db, "."); err != nil {
			log.WithError(err).Fatal("Rollback failed")
		}
		log.Info("Rollback complete")
		return
	}

	log.Info("Running database migrations...")
	if err := goose.Up(db, "."); err != nil {
		log.WithError(err).Fatal("Migration failed")
	}
	log.Info("Migrations completed successfully")
}
