package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/medikart/storefront/internal/domain"
	"github.com/medikart/storefront/internal/port"
)

type availabilityClient struct {
	c *Client
}

func NewAvailabilityService(c *Client) port.AvailabilityService {
	return &availabilityClient{c: c}
}

type availabilityDTO struct {
	PharmacyID   string          `json:"pharmacy_id"`
	PharmacyName string          `json:"pharmacy_name"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
}

func (ac *availabilityClient) Availability(ctx context.Context, productID string) ([]port.Availability, error) {
	if productID == "" {
		return nil, fmt.Errorf("productID is empty: %w", domain.ErrValidation)
	}

	var dtos []availabilityDTO
	path := "/products/" + url.PathEscape(productID) + "/availability/"
	if err := ac.c.do(ctx, http.MethodGet, path, nil, &dtos); err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}

	out := make([]port.Availability, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, port.Availability{
			PharmacyID:   dto.PharmacyID,
			PharmacyName: dto.PharmacyName,
			Price:        domain.NewMoney(dto.Price),
			Quantity:     dto.Quantity,
		})
	}
	return out, nil
}
