package port

import (
	"context"

	"github.com/medikart/storefront/internal/domain"
)

// NotificationService is the server notification feed contract. The list is
// returned in server order, which callers must preserve.
type NotificationService interface {
	List(ctx context.Context) ([]domain.Notification, error)
	MarkAsRead(ctx context.Context, id string) error
	MarkAllAsRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
	ClearAll(ctx context.Context) error
}
