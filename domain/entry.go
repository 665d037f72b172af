package domain

import "time"

type EntryKind string

const (
	EntryChat         EntryKind = "chat"
	EntryNotification EntryKind = "notification"
)

// Entry is the envelope stored in a delivery log. Exactly one of Chat or
// Notification is set, according to Kind.
type Entry struct {
	Kind         EntryKind     `json:"kind"`
	Chat         *ChatMessage  `json:"chat,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

func NewChatEntry(m ChatMessage) Entry {
	return Entry{Kind: EntryChat, Chat: &m}
}

func NewNotificationEntry(n Notification) Entry {
	return Entry{Kind: EntryNotification, Notification: &n}
}

// At returns the append-relevant timestamp of the wrapped value.
func (e Entry) At() time.Time {
	switch e.Kind {
	case EntryChat:
		if e.Chat != nil {
			return e.Chat.SentAt
		}
	case EntryNotification:
		if e.Notification != nil {
			return e.Notification.Timestamp
		}
	}
	return time.Time{}
}
