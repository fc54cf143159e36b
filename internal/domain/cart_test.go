package domain_test

import (
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medikart/storefront/internal/domain"
)

func TestBuildCart(t *testing.T) {
	tests := []struct {
		name       string
		items      []domain.CartItem
		wantItems  int
		wantTotal  int
		wantPrice  string
	}{
		{
			name:      "empty cart",
			items:     nil,
			wantItems: 0,
			wantTotal: 0,
			wantPrice: "0",
		},
		{
			name: "totals are sums of quantity and line totals",
			items: []domain.CartItem{
				itemWithPrice("P1", "V1", 2, 500),
				itemWithPrice("P2", "V1", 1, 1250),
			},
			wantItems: 2,
			wantTotal: 3,
			wantPrice: "2250",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cart := domain.BuildCart(tt.items)

			assert.Len(t, cart.Items, tt.wantItems)
			assert.Equal(t, tt.wantTotal, cart.TotalItems)
			assert.Equal(t, tt.wantPrice, cart.TotalPrice.String())
		})
	}
}

func TestBuildCart_SnapshotIsImmutable(t *testing.T) {
	items := []domain.CartItem{itemWithPrice("P1", "V1", 2, 500)}

	cart := domain.BuildCart(items)
	items[0].Quantity = 99

	assert.Equal(t, 2, cart.Items[0].Quantity)
}

func TestMergeItems(t *testing.T) {
	tests := []struct {
		name          string
		items         []domain.CartItem
		wantLen       int
		wantQuantity  int
	}{
		{
			name: "duplicate pairs collapse by summing quantity",
			items: []domain.CartItem{
				itemWithPrice("P1", "V1", 2, 500),
				itemWithPrice("P1", "V1", 3, 500),
			},
			wantLen:      1,
			wantQuantity: 5,
		},
		{
			name: "same product at another pharmacy stays distinct",
			items: []domain.CartItem{
				itemWithPrice("P1", "V1", 1, 500),
				itemWithPrice("P1", "V2", 1, 500),
			},
			wantLen:      2,
			wantQuantity: 1,
		},
		{
			name: "non-positive quantities are dropped",
			items: []domain.CartItem{
				itemWithPrice("P1", "V1", 0, 500),
				itemWithPrice("P2", "V1", 4, 500),
			},
			wantLen:      1,
			wantQuantity: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := domain.MergeItems(tt.items)

			require.Len(t, merged, tt.wantLen)
			assert.Equal(t, tt.wantQuantity, merged[0].Quantity)
		})
	}
}

func TestMergeItems_KeepsFirstSeenOrder(t *testing.T) {
	items := []domain.CartItem{
		itemWithPrice("P2", "V1", 1, 100),
		itemWithPrice("P1", "V1", 1, 100),
		itemWithPrice("P2", "V1", 1, 100),
	}

	merged := domain.MergeItems(items)

	require.Len(t, merged, 2)
	assert.Equal(t, "P2", merged[0].ProductID)
	assert.Equal(t, "P1", merged[1].ProductID)
}

func TestFindByPair(t *testing.T) {
	items := []domain.CartItem{
		itemWithPrice("P1", "V1", 1, 100),
		itemWithPrice("P1", "V2", 1, 100),
	}

	assert.Equal(t, 1, domain.FindByPair(items, "P1", "V2"))
	assert.Equal(t, -1, domain.FindByPair(items, "P9", "V1"))
}

func TestNewLocalItemID(t *testing.T) {
	a := domain.NewLocalItemID()
	b := domain.NewLocalItemID()

	assert.True(t, strings.HasPrefix(a, domain.LocalItemIDPrefix))
	assert.NotEqual(t, a, b)
}

func itemWithPrice(productID, pharmacyID string, quantity int, price int64) domain.CartItem {
	return domain.CartItem{
		ID:         domain.NewLocalItemID(),
		ProductID:  productID,
		PharmacyID: pharmacyID,
		Quantity:   quantity,
		UnitPrice:  domain.NewMoney(decimal.NewFromInt(price)),
		Product:    domain.ProductSnapshot{ID: productID, Name: gofakeit.ProductName()},
		Pharmacy:   domain.PharmacySnapshot{ID: pharmacyID, Name: gofakeit.Company()},
	}
}
