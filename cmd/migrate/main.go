// Command migrate runs goose migrations against the configured database.
//
//	migrate up | down | status | redo | version | up-to VERSION
package main

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/recordvault/backend/internal/config"
	"github.com/recordvault/backend/internal/database"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <command> [args]")
	}
	command, args := os.Args[1], os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	ctx := context.Background()
	db, err := database.InitDB(ctx, cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Database unavailable")
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, command, args...); err != nil {
		log.WithError(err).Fatal("Migration failed")
	}
	log.WithField("command", command).Info("Migration complete")
}
