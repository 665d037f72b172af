// Package domain contains core concepts of the delivery engine.
// Messages and notifications are immutable values: built once, then
// appended to a log or pushed to a connection, never mutated.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage represents a single conversation turn.
type ChatMessage struct {
	ID         uuid.UUID `json:"id"`
	SenderID   string    `json:"senderId"`
	SenderRole Role      `json:"senderRole"`
	Body       string    `json:"body"`
	Lang       string    `json:"lang,omitempty"`
	SentAt     time.Time `json:"timestamp"`
}
