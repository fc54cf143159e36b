package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/medikart/storefront/internal/domain"
	"github.com/medikart/storefront/internal/port"
)

type notificationClient struct {
	c *Client
}

func NewNotificationService(c *Client) port.NotificationService {
	return &notificationClient{c: c}
}

type notificationDTO struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Type      string         `json:"type"`
	IsRead    bool           `json:"is_read"`
	CreatedAt time.Time      `json:"created_at"`
	Data      map[string]any `json:"data"`
	MetaData  map[string]any `json:"meta_data"`
}

func (nc *notificationClient) List(ctx context.Context) ([]domain.Notification, error) {
	var dtos []notificationDTO
	if err := nc.c.do(ctx, http.MethodGet, "/notifications/", nil, &dtos); err != nil {
		return nil, fmt.Errorf("GET /notifications/: %w", err)
	}

	// Server order is preserved; the dialog controller relies on it.
	out := make([]domain.Notification, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, domain.Notification{
			ID:        dto.ID,
			Title:     dto.Title,
			Message:   dto.Message,
			Type:      domain.NotificationType(dto.Type),
			IsRead:    dto.IsRead,
			CreatedAt: dto.CreatedAt,
			Data:      dto.Data,
			MetaData:  dto.MetaData,
		})
	}
	return out, nil
}

func (nc *notificationClient) MarkAsRead(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("id is empty: %w", domain.ErrValidation)
	}

	path := "/notifications/" + url.PathEscape(id) + "/read/"
	if err := nc.c.do(ctx, http.MethodPatch, path, nil, nil); err != nil {
		return fmt.Errorf("PATCH %s: %w", path, err)
	}
	return nil
}

func (nc *notificationClient) MarkAllAsRead(ctx context.Context) error {
	if err := nc.c.do(ctx, http.MethodPatch, "/notifications/mark-all-read/", nil, nil); err != nil {
		return fmt.Errorf("PATCH /notifications/mark-all-read/: %w", err)
	}
	return nil
}

func (nc *notificationClient) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("id is empty: %w", domain.ErrValidation)
	}

	path := "/notifications/" + url.PathEscape(id) + "/"
	if err := nc.c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("DELETE %s: %w", path, err)
	}
	return nil
}

func (nc *notificationClient) ClearAll(ctx context.Context) error {
	if err := nc.c.do(ctx, http.MethodDelete, "/notifications/", nil, nil); err != nil {
		return fmt.Errorf("DELETE /notifications/: %w", err)
	}
	return nil
}
