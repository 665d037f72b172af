package notify

import (
	"fmt"
	"time"

	"support-hub/domain"
)

// Renderer builds notifications from bus records using a fixed per-subtype
// template table. Unknown subtypes and events missing the fields a template
// needs render the generic fallback for their type; a bad event degrades to a
// vague notification instead of failing the consumption loop.
type Renderer struct {
	now func() time.Time
}

func NewRenderer() *Renderer {
	return &Renderer{now: time.Now}
}

// Render produces the notification for a record consumed from topic.
// The boolean is false when the topic is not one the engine classifies.
func (r *Renderer) Render(topic Topic, rec Record) (domain.Notification, bool) {
	nType, ok := topic.NotificationType()
	if !ok {
		return domain.Notification{}, false
	}
	return domain.Notification{
		Type:      nType,
		Title:     titleFor(nType),
		Message:   messageFor(nType, rec),
		Timestamp: r.now().UTC(),
		Raw:       rec.Raw,
	}, true
}

func titleFor(t domain.NotificationType) string {
	switch t {
	case domain.NotificationOrder:
		return "Order Update"
	case domain.NotificationPayment:
		return "Payment Update"
	case domain.NotificationTicket:
		return "Ticket Update"
	default:
		return "Account Update"
	}
}

func messageFor(t domain.NotificationType, rec Record) string {
	switch t {
	case domain.NotificationOrder:
		return orderMessage(rec)
	case domain.NotificationPayment:
		return paymentMessage(rec)
	case domain.NotificationTicket:
		return ticketMessage(rec)
	default:
		return userMessage(rec)
	}
}

func orderMessage(rec Record) string {
	orderID, hasOrder := rec.Field("orderId")
	switch rec.Subtype {
	case "ORDER_CREATED":
		if hasOrder {
			return fmt.Sprintf("Order #%s has been created successfully.", orderID)
		}
	case "ORDER_CONFIRMED":
		if hasOrder {
			return fmt.Sprintf("Order #%s has been confirmed.", orderID)
		}
	case "ORDER_CANCELLED":
		if hasOrder {
			return fmt.Sprintf("Order #%s has been cancelled.", orderID)
		}
	}
	return "Order status updated."
}

func paymentMessage(rec Record) string {
	switch rec.Subtype {
	case "PAYMENT_SUCCESS":
		if amount, ok := rec.Field("amount"); ok {
			return fmt.Sprintf("Payment of $%s processed successfully.", amount)
		}
	case "PAYMENT_FAILED":
		if reason, ok := rec.Field("reason"); ok {
			return fmt.Sprintf("Payment failed: %s", reason)
		}
	}
	return "Payment status updated."
}

func ticketMessage(rec Record) string {
	orderID, hasOrder := rec.Field("orderId")
	switch rec.Subtype {
	case "TICKETS_RESERVED":
		if hasOrder {
			return fmt.Sprintf("Tickets reserved for order #%s.", orderID)
		}
	case "TICKETS_SOLD":
		if hasOrder {
			return fmt.Sprintf("Tickets purchased successfully for order #%s.", orderID)
		}
	case "TICKETS_CANCELLED":
		if hasOrder {
			return fmt.Sprintf("Tickets cancelled for order #%s.", orderID)
		}
	}
	return "Ticket status updated."
}

func userMessage(rec Record) string {
	switch rec.Subtype {
	case "USER_CREATED":
		return "Welcome! Your account has been created successfully."
	case "USER_UPDATED":
		return "Your profile has been updated."
	default:
		return "Account updated."
	}
}
