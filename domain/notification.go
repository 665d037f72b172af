package domain

import (
	"encoding/json"
	"time"
)

// NotificationType mirrors the four business event families the engine
// consumes from the bus.
type NotificationType string

const (
	NotificationOrder   NotificationType = "order"
	NotificationPayment NotificationType = "payment"
	NotificationTicket  NotificationType = "ticket"
	NotificationUser    NotificationType = "user"
)

// Notification is the rendered, human-readable form of a domain event.
// Raw carries the original event payload for clients that want the fields.
type Notification struct {
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	Raw       json.RawMessage  `json:"data,omitempty"`
}
