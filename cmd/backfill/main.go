package main

import (
	"context"
	"flag"
	"log"

	"registration-service/config"
	"registration-service/internal/credential"
	"registration-service/internal/mailer"
	"registration-service/internal/service"
	"registration-service/internal/store"
	"registration-service/internal/util"
)

func main() {
	limit := flag.Int("limit", 200, "maximum number of orders to process")
	flag.Parse()

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	issuer := credential.NewIssuer(cfg.Ticket.BaseURL)
	notifier := mailer.New(cfg.Email)

	backfill := service.NewNotificationBackfill(db, issuer, notifier)

	sent, err := backfill.Run(context.Background(), *limit)
	if err != nil {
		log.Fatalf("Backfill failed: %v", err)
	}

	log.Printf("Backfill finished: %d notifications sent", sent)
}
