package service

import (
	"context"
	"strings"

	"registration-service/internal/models"
)

// CatalogLookup is the read-only pricing source. A nil item with a nil error
// means the name is unknown.
type CatalogLookup interface {
	GetCatalogItemByName(ctx context.Context, name string) (*models.CatalogItem, error)
}

// CartItem is one client-submitted cart line. The client never supplies a
// price; only name and category participate in resolution.
type CartItem struct {
	Name     string `json:"name" binding:"required"`
	Category string `json:"category,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
}

// PricingResolver resolves cart lines against the trusted catalog.
type PricingResolver struct {
	catalog CatalogLookup
}

func NewPricingResolver(catalog CatalogLookup) *PricingResolver {
	return &PricingResolver{catalog: catalog}
}

// Resolve finds the catalog entry for a cart line. When a non-generic
// category is given, the "{name} ({Category})" variant is tried first; the
// exact name is the fallback. First match wins.
func (r *PricingResolver) Resolve(ctx context.Context, name, category string) (*models.CatalogItem, error) {
	if category != "" && !strings.EqualFold(category, "Open") {
		variant := name + " (" + titleCase(category) + ")"
		item, err := r.catalog.GetCatalogItemByName(ctx, variant)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return item, nil
		}
	}

	return r.catalog.GetCatalogItemByName(ctx, name)
}

// ResolveCart prices a whole cart. If any line fails resolution the cart is
// rejected as a unit and every unresolved name is reported back. Canonical
// names and prices come only from the catalog.
func (r *PricingResolver) ResolveCart(ctx context.Context, items []CartItem) ([]models.OrderItem, int64, error) {
	resolved := make([]models.OrderItem, 0, len(items))
	var missing []string
	var total int64

	for _, line := range items {
		name := strings.TrimSpace(line.Name)
		if name == "" {
			continue
		}

		item, err := r.Resolve(ctx, name, line.Category)
		if err != nil {
			return nil, 0, err
		}
		if item == nil {
			missing = append(missing, name)
			continue
		}

		quantity := line.Quantity
		if quantity < 1 {
			quantity = 1
		}

		total += item.Price * int64(quantity)
		resolved = append(resolved, models.OrderItem{
			CatalogID: item.ID,
			Name:      item.Name,
			UnitPrice: item.Price,
			Quantity:  quantity,
		})
	}

	if len(missing) > 0 {
		return nil, 0, &models.ItemNotFoundError{Names: missing}
	}

	return resolved, total, nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
