package domain

import (
	"time"
)

type NotificationType string

const (
	NotificationInfo                NotificationType = "info"
	NotificationSuccess             NotificationType = "success"
	NotificationWarning             NotificationType = "warning"
	NotificationError               NotificationType = "error"
	NotificationOrder               NotificationType = "order"
	NotificationPharmacy            NotificationType = "pharmacy"
	NotificationProduct             NotificationType = "product"
	NotificationPrescriptionExpired NotificationType = "prescription_expired"
)

// Placeholder display values used when a notification carries no usable
// product or pharmacy name.
const (
	PlaceholderProductName  = "Produit"
	PlaceholderPharmacyName = "Pharmacie"
)

type Notification struct {
	ID        string
	Title     string
	Message   string
	Type      NotificationType
	IsRead    bool
	CreatedAt time.Time

	// Data and MetaData are opaque payload bags. The server has historically
	// placed the same fields in either of them, sometimes nesting a
	// meta_data object inside Data; lookups must treat all locations as
	// equivalent.
	Data     map[string]any
	MetaData map[string]any
}

// PrescriptionRequestID resolves the expired-request identifier from the
// primary metadata field, the legacy data field, or the legacy nested
// meta_data object inside data, in that order.
func (n Notification) PrescriptionRequestID() (string, bool) {
	return n.lookupPayloadString("prescription_request_id")
}

// ProductName resolves the display product name, falling back to a
// placeholder when absent.
func (n Notification) ProductName() string {
	if v, ok := n.lookupPayloadString("product_name"); ok {
		return v
	}
	return PlaceholderProductName
}

// PharmacyName resolves the display pharmacy name, falling back to a
// placeholder when absent.
func (n Notification) PharmacyName() string {
	if v, ok := n.lookupPayloadString("pharmacy_name"); ok {
		return v
	}
	return PlaceholderPharmacyName
}

func (n Notification) lookupPayloadString(key string) (string, bool) {
	if v, ok := stringValue(n.MetaData, key); ok {
		return v, true
	}
	if v, ok := stringValue(n.Data, key); ok {
		return v, true
	}
	if nested, ok := n.Data["meta_data"].(map[string]any); ok {
		if v, ok := stringValue(nested, key); ok {
			return v, true
		}
	}
	return "", false
}

func stringValue(m map[string]any, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// UnreadCount counts unread notifications in a list.
func UnreadCount(list []Notification) int {
	count := 0
	for _, n := range list {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// CloneNotifications copies a notification list so engine state cannot be
// mutated through a shared backing array.
func CloneNotifications(list []Notification) []Notification {
	if len(list) == 0 {
		return []Notification{}
	}
	out := make([]Notification, len(list))
	copy(out, list)
	return out
}
