package port

import (
	"context"

	"github.com/medikart/storefront/internal/domain"
)

// CartStore is the durable guest-cart store, scoped to one profile. It is
// the source of truth while no session exists and is erased once its content
// has been merged into the server cart.
type CartStore interface {
	Load(ctx context.Context) ([]domain.CartItem, error)
	Save(ctx context.Context, items []domain.CartItem) error
	Clear(ctx context.Context) error
}

// CartService is the authenticated server-cart contract. Item ids are
// server-assigned.
type CartService interface {
	GetItems(ctx context.Context) ([]domain.CartItem, error)
	AddItem(ctx context.Context, productID, pharmacyID string, quantity int) (domain.CartItem, error)
	UpdateItem(ctx context.Context, itemID string, quantity int) (domain.CartItem, error)
	RemoveItem(ctx context.Context, itemID string) error
	Clear(ctx context.Context) error
}

// Availability is one pharmacy's offer for a product, used for guest-mode
// price enrichment.
type Availability struct {
	PharmacyID   string
	PharmacyName string
	Price        domain.Money
	Quantity     int
}

// AvailabilityService looks up per-pharmacy availability for a product.
type AvailabilityService interface {
	Availability(ctx context.Context, productID string) ([]Availability, error)
}
