package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"registration-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetCatalogItemByName retrieves a catalog item by exact name. Returns
// nil, nil on a miss so callers can try the next lookup key.
func (s *Store) GetCatalogItemByName(ctx context.Context, name string) (*models.CatalogItem, error) {
	var item models.CatalogItem
	err := s.db.GetContext(ctx, &item, "SELECT * FROM catalog_items WHERE name = $1", name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListCatalogItems retrieves the whole catalog
func (s *Store) ListCatalogItems(ctx context.Context) ([]models.CatalogItem, error) {
	var items []models.CatalogItem
	err := s.db.SelectContext(ctx, &items, "SELECT * FROM catalog_items ORDER BY id")
	return items, err
}

// UpsertCatalogItem inserts or updates a catalog entry by name. Used by the
// seed command.
func (s *Store) UpsertCatalogItem(ctx context.Context, item *models.CatalogItem) error {
	query := `
		INSERT INTO catalog_items (name, category, price)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET category = EXCLUDED.category, price = EXCLUDED.price
		RETURNING id, created_at`

	return s.db.GetContext(ctx, item, query, item.Name, item.Category, item.Price)
}
