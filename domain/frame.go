package domain

// FrameType names a server→client event on the realtime connection.
type FrameType string

const (
	FrameNewMessage   FrameType = "new_message"
	FrameChatHistory  FrameType = "chat_history"
	FrameNotification FrameType = "notification"
	FrameTypingStart  FrameType = "typing_start"
	FrameTypingStop   FrameType = "typing_stop"
	FrameError        FrameType = "error"
)

// Typing is the ephemeral counterpart-is-typing signal. It never touches the
// delivery store; clients expire it on their own after a short window.
type Typing struct {
	Identity string `json:"identity"`
	Role     Role   `json:"role"`
}

// Frame is one outbound event on a live connection. Exactly one payload field
// is set, according to Type.
type Frame struct {
	Type         FrameType     `json:"type"`
	Message      *ChatMessage  `json:"message,omitempty"`
	History      []Entry       `json:"history,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	Typing       *Typing       `json:"typing,omitempty"`
	Error        string        `json:"error,omitempty"`
}

func NewMessageFrame(m ChatMessage) Frame {
	return Frame{Type: FrameNewMessage, Message: &m}
}

// HistoryFrame wraps a full conversation replay. Clients treat an absent
// history field as an empty conversation.
func HistoryFrame(entries []Entry) Frame {
	return Frame{Type: FrameChatHistory, History: entries}
}

func NotificationFrame(n Notification) Frame {
	return Frame{Type: FrameNotification, Notification: &n}
}

func TypingFrame(active bool, identity string, role Role) Frame {
	t := FrameTypingStart
	if !active {
		t = FrameTypingStop
	}
	return Frame{Type: t, Typing: &Typing{Identity: identity, Role: role}}
}

// FrameFor wraps a stored entry into the frame a live recipient expects.
func FrameFor(e Entry) Frame {
	if e.Kind == EntryNotification && e.Notification != nil {
		return NotificationFrame(*e.Notification)
	}
	if e.Chat != nil {
		return NewMessageFrame(*e.Chat)
	}
	return Frame{Type: FrameError, Error: "empty entry"}
}
