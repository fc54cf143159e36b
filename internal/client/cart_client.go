package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medikart/storefront/internal/domain"
	"github.com/medikart/storefront/internal/port"
)

type cartClient struct {
	c *Client
}

func NewCartService(c *Client) port.CartService {
	return &cartClient{c: c}
}

type cartItemDTO struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"product_id"`
	PharmacyID string          `json:"pharmacy_id"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Product    struct {
		ID                   string `json:"id"`
		Name                 string `json:"name"`
		GenericName          string `json:"generic_name"`
		Dosage               string `json:"dosage"`
		Manufacturer         string `json:"manufacturer"`
		RequiresPrescription bool   `json:"requires_prescription"`
	} `json:"product"`
	Pharmacy struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		City string `json:"city"`
	} `json:"pharmacy"`
	CreatedAt time.Time `json:"created_at"`
}

func (cc *cartClient) GetItems(ctx context.Context) ([]domain.CartItem, error) {
	var dtos []cartItemDTO
	if err := cc.c.do(ctx, http.MethodGet, "/cart/items", nil, &dtos); err != nil {
		return nil, fmt.Errorf("GET /cart/items: %w", err)
	}

	items := make([]domain.CartItem, 0, len(dtos))
	for _, dto := range dtos {
		items = append(items, mapCartItemToDomain(dto))
	}
	return items, nil
}

func (cc *cartClient) AddItem(ctx context.Context, productID, pharmacyID string, quantity int) (domain.CartItem, error) {
	if productID == "" || pharmacyID == "" {
		return domain.CartItem{}, fmt.Errorf("product or pharmacy id is empty: %w", domain.ErrValidation)
	}
	if quantity < 1 {
		return domain.CartItem{}, fmt.Errorf("quantity[%d] below 1: %w", quantity, domain.ErrValidation)
	}

	body := map[string]any{
		"product_id":  productID,
		"pharmacy_id": pharmacyID,
		"quantity":    quantity,
	}

	var dto cartItemDTO
	if err := cc.c.do(ctx, http.MethodPost, "/cart/items", body, &dto); err != nil {
		return domain.CartItem{}, fmt.Errorf("POST /cart/items: %w", err)
	}
	return mapCartItemToDomain(dto), nil
}

func (cc *cartClient) UpdateItem(ctx context.Context, itemID string, quantity int) (domain.CartItem, error) {
	if itemID == "" {
		return domain.CartItem{}, fmt.Errorf("itemID is empty: %w", domain.ErrValidation)
	}
	if quantity < 1 {
		return domain.CartItem{}, fmt.Errorf("quantity[%d] below 1: %w", quantity, domain.ErrValidation)
	}

	var dto cartItemDTO
	path := "/cart/items/" + url.PathEscape(itemID)
	if err := cc.c.do(ctx, http.MethodPut, path, map[string]int{"quantity": quantity}, &dto); err != nil {
		return domain.CartItem{}, fmt.Errorf("PUT %s: %w", path, err)
	}
	return mapCartItemToDomain(dto), nil
}

func (cc *cartClient) RemoveItem(ctx context.Context, itemID string) error {
	if itemID == "" {
		return fmt.Errorf("itemID is empty: %w", domain.ErrValidation)
	}

	path := "/cart/items/" + url.PathEscape(itemID)
	if err := cc.c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("DELETE %s: %w", path, err)
	}
	return nil
}

func (cc *cartClient) Clear(ctx context.Context) error {
	if err := cc.c.do(ctx, http.MethodDelete, "/cart/clear", nil, nil); err != nil {
		return fmt.Errorf("DELETE /cart/clear: %w", err)
	}
	return nil
}

func mapCartItemToDomain(dto cartItemDTO) domain.CartItem {
	return domain.CartItem{
		ID:         dto.ID,
		ProductID:  dto.ProductID,
		PharmacyID: dto.PharmacyID,
		Quantity:   dto.Quantity,
		UnitPrice:  domain.NewMoney(dto.Price),
		Product: domain.ProductSnapshot{
			ID:                   dto.Product.ID,
			Name:                 dto.Product.Name,
			GenericName:          dto.Product.GenericName,
			Dosage:               dto.Product.Dosage,
			Manufacturer:         dto.Product.Manufacturer,
			RequiresPrescription: dto.Product.RequiresPrescription,
		},
		Pharmacy: domain.PharmacySnapshot{
			ID:   dto.Pharmacy.ID,
			Name: dto.Pharmacy.Name,
			City: dto.Pharmacy.City,
		},
		CreatedAt: dto.CreatedAt,
	}
}
