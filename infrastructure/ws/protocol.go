// Package ws implements the realtime connection boundary: one persistent,
// message-framed connection per client carrying JSON commands in and JSON
// frames out.
package ws

import (
	"github.com/go-playground/validator/v10"

	"support-hub/domain"
)

type CommandType string

const (
	CommandRegister    CommandType = "register"
	CommandSendMessage CommandType = "send_message"
	CommandJoinChat    CommandType = "join_chat"
	CommandTypingStart CommandType = "typing_start"
	CommandTypingStop  CommandType = "typing_stop"
)

// Command is one client→server frame. The first command on a connection must
// be a register carrying identity and role; everything else is rejected until
// then.
type Command struct {
	Type        CommandType `json:"type"`
	Identity    string      `json:"identity,omitempty"`
	Role        domain.Role `json:"role,omitempty"`
	Message     string      `json:"message,omitempty"`
	RecipientID string      `json:"recipientId,omitempty"`
	UserID      string      `json:"userId,omitempty"`
}

type registration struct {
	Identity string      `validate:"required,min=1,max=128"`
	Role     domain.Role `validate:"required,oneof=user agent"`
}

// ValidateRegister checks the registration fields of a register command.
func ValidateRegister(v *validator.Validate, cmd Command) error {
	return v.Struct(registration{Identity: cmd.Identity, Role: cmd.Role})
}
