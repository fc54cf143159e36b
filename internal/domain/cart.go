package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LocalItemIDPrefix marks item ids synthesized for the guest cart.
// Server-issued ids never carry it, so ids are never reused across modes.
const LocalItemIDPrefix = "local-"

// NewLocalItemID generates an id for a guest-cart item.
func NewLocalItemID() string {
	return LocalItemIDPrefix + uuid.NewString()
}

// ProductSnapshot is the product display data captured at add time, so the
// cart remains renderable without a live product join.
type ProductSnapshot struct {
	ID                   string
	Name                 string
	GenericName          string
	Dosage               string
	Manufacturer         string
	RequiresPrescription bool
}

// PharmacySnapshot is the vendor display data captured at add time.
type PharmacySnapshot struct {
	ID   string
	Name string
	City string
}

type CartItem struct {
	ID         string
	ProductID  string
	PharmacyID string
	Quantity   int
	UnitPrice  Money

	Product  ProductSnapshot
	Pharmacy PharmacySnapshot

	CreatedAt time.Time
}

// LineTotal is quantity times unit price.
func (i CartItem) LineTotal() Money {
	return i.UnitPrice.MulQty(i.Quantity)
}

// SamePair reports whether the item targets the given (product, pharmacy)
// pair, which defines item identity within a cart.
func (i CartItem) SamePair(productID, pharmacyID string) bool {
	return i.ProductID == productID && i.PharmacyID == pharmacyID
}

// Cart is a derived snapshot over an item set. It is never persisted as an
// object; totals are always recomputed from the items.
type Cart struct {
	Items      []CartItem
	TotalItems int
	TotalPrice decimal.Decimal
}

// BuildCart computes a consistent snapshot from items. The input slice is
// cloned, so the snapshot stays immutable under later engine mutations.
func BuildCart(items []CartItem) Cart {
	cloned := CloneItems(items)

	total := 0
	price := decimal.Zero
	for _, it := range cloned {
		total += it.Quantity
		price = price.Add(it.LineTotal().Amount)
	}

	return Cart{
		Items:      cloned,
		TotalItems: total,
		TotalPrice: price,
	}
}

// FindByPair returns the index of the item with the given
// (productID, pharmacyID) pair, or -1.
func FindByPair(items []CartItem, productID, pharmacyID string) int {
	for i := range items {
		if items[i].SamePair(productID, pharmacyID) {
			return i
		}
	}
	return -1
}

// FindByID returns the index of the item with the given id, or -1.
func FindByID(items []CartItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

// MergeItems collapses duplicate (productID, pharmacyID) pairs by summing
// quantities, keeping first-seen order. Entries with a non-positive quantity
// are dropped. It restores the at-most-one-item-per-pair invariant on item
// sets loaded from storage.
func MergeItems(items []CartItem) []CartItem {
	out := make([]CartItem, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}

		idx := FindByPair(out, it.ProductID, it.PharmacyID)
		if idx >= 0 {
			out[idx].Quantity += it.Quantity
			continue
		}
		out = append(out, it)
	}
	return out
}

// CloneItems copies an item slice so callers cannot mutate engine state
// through a shared backing array.
func CloneItems(items []CartItem) []CartItem {
	if len(items) == 0 {
		return []CartItem{}
	}
	out := make([]CartItem, len(items))
	copy(out, items)
	return out
}
