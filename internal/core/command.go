package core

import (
	"strings"
	"unicode/utf8"

	"github.com/vovakirdan/huddle-server/internal/store"
)

// MaxContentLength caps message content, counted in characters.
const MaxContentLength = 1000

// CommandKind describes what the connection wants to do.
type CommandKind int

const (
	// CommandJoinRoom subscribes the connection to a room channel.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom unsubscribes the connection from a room channel.
	CommandLeaveRoom
	// CommandSendMessage submits a message to a room.
	CommandSendMessage
	// CommandTyping toggles the typing indicator in a room.
	CommandTyping
)

// Command represents an action requested by a connection.
type Command struct {
	Kind     CommandKind
	RoomID   string
	Draft    Draft
	IsTyping bool
}

// Draft is an unsent message.
type Draft struct {
	Type     store.MessageType
	Content  string
	FileURL  *string
	FileName *string
}

// normalize applies defaults and validates a user-authored draft.
func (d Draft) normalize() (Draft, error) {
	if d.Type == "" {
		d.Type = store.MessageTypeText
	}
	if !d.Type.Valid() || d.Type == store.MessageTypeSystem {
		return d, NewError(ErrCodeBadRequest, "unsupported message type %q", d.Type)
	}
	if err := ValidateContent(d.Content); err != nil {
		return d, err
	}
	return d, nil
}

// ValidateContent checks message content bounds.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return coreError(ErrCodeBadRequest, "content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return NewError(ErrCodeBadRequest, "content exceeds %d characters", MaxContentLength)
	}
	return nil
}
