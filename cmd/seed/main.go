package main

import (
	"context"
	"log"

	"registration-service/config"
	"registration-service/internal/models"
	"registration-service/internal/store"
)

// seedItems is the current event catalog. Zero-price entries are open
// categories that register for free.
var seedItems = []models.CatalogItem{
	{Name: "Leather Cricket (Boys)", Category: "Sports", Price: 400},
	{Name: "Leather Cricket (Girls)", Category: "Sports", Price: 0},

	{Name: "Football (7v7 / 5v5) (Boys)", Category: "Sports", Price: 250},
	{Name: "Football (7v7 / 5v5) (Girls)", Category: "Sports", Price: 0},

	{Name: "Basketball (Boys)", Category: "Sports", Price: 250},
	{Name: "Basketball (Girls)", Category: "Sports", Price: 0},

	{Name: "Volleyball (Boys)", Category: "Sports", Price: 250},
	{Name: "Volleyball (Girls)", Category: "Sports", Price: 0},

	{Name: "Badminton (Singles) (Boys)", Category: "Sports", Price: 250},
	{Name: "Badminton (Singles) (Girls)", Category: "Sports", Price: 0},
	{Name: "Badminton (Doubles) (Boys)", Category: "Sports", Price: 500},
	{Name: "Badminton (Doubles) (Girls)", Category: "Sports", Price: 0},
	{Name: "Badminton (Mixed)", Category: "Sports", Price: 250},

	{Name: "Box Cricket", Category: "Sports", Price: 1100},
	{Name: "Kabaddi", Category: "Sports", Price: 1100},
	{Name: "E-Sports", Category: "Sports", Price: 500},

	{Name: "Chess (Boys)", Category: "Sports", Price: 150},
	{Name: "Chess (Girls)", Category: "Sports", Price: 0},

	{Name: models.GeneralRegistration, Category: "Sports", Price: 100},
}

func main() {
	cfg := config.Load()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	for i := range seedItems {
		item := seedItems[i]
		if err := db.UpsertCatalogItem(ctx, &item); err != nil {
			log.Fatalf("Failed to seed %q: %v", item.Name, err)
		}
		log.Printf("Synced: %s (%d)", item.Name, item.Price)
	}

	log.Printf("Seeded %d catalog items", len(seedItems))
}
