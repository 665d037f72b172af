// Package notify turns raw bus events into rendered, human-readable
// notifications.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"

	"support-hub/domain"
)

// Topic is a logical bus topic the engine subscribes to.
type Topic string

const (
	TopicOrders   Topic = "order-events"
	TopicPayments Topic = "payment-events"
	TopicTickets  Topic = "ticket-events"
	TopicUsers    Topic = "user-events"
)

// Topics lists every subscribed topic, one consumer worker each.
func Topics() []Topic {
	return []Topic{TopicOrders, TopicPayments, TopicTickets, TopicUsers}
}

// NotificationType maps a topic to the notification family rendered from it.
func (t Topic) NotificationType() (domain.NotificationType, bool) {
	switch t {
	case TopicOrders:
		return domain.NotificationOrder, true
	case TopicPayments:
		return domain.NotificationPayment, true
	case TopicTickets:
		return domain.NotificationTicket, true
	case TopicUsers:
		return domain.NotificationUser, true
	}
	return "", false
}

// Record is a decoded bus event. Subtype and UserID are the two fields every
// event carries; everything else stays in the loose field map because each
// subtype reads different keys and producers are not trusted to send them.
type Record struct {
	Subtype string
	UserID  string
	Raw     json.RawMessage

	fields map[string]any
}

// ParseRecord decodes an event payload. Numbers are kept as json.Number so
// ids like orderId render the same whether the producer sent 77 or "77".
func ParseRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Record{}, fmt.Errorf("decode event: %w", err)
	}

	rec := Record{Raw: json.RawMessage(data), fields: fields}
	rec.Subtype, _ = rec.Field("type")
	rec.UserID, _ = rec.Field("userId")
	return rec, nil
}

// Field returns the named event field rendered as a string. Missing, null or
// structured values report absent so the renderer can fall back.
func (r Record) Field(name string) (string, bool) {
	v, ok := r.fields[name]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, t != ""
	case json.Number:
		return t.String(), true
	case bool:
		return fmt.Sprintf("%t", t), true
	default:
		return "", false
	}
}
