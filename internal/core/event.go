package core

import (
	"context"
	"fmt"
	"time"

	"github.com/vovakirdan/huddle-server/internal/store"
)

// EventKind is a notification the core emits to connections.
type EventKind int

const (
	// EventUserOnline notifies that a user's first connection was admitted.
	EventUserOnline EventKind = iota
	// EventUserOffline notifies that a user's last connection was released.
	EventUserOffline
	// EventUserJoined notifies room subscribers about a user joining the room channel.
	EventUserJoined
	// EventUserLeft notifies room subscribers about a user leaving the room channel.
	EventUserLeft
	// EventNewMessage delivers a persisted, hydrated message.
	EventNewMessage
	// EventMessageUpdated delivers an edited message.
	EventMessageUpdated
	// EventMessageDeleted notifies that a message was removed.
	EventMessageDeleted
	// EventUserTyping carries a typing indicator change.
	EventUserTyping
	// EventError notifies the originating connection about a domain error.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventUserOnline:
		return "user-online"
	case EventUserOffline:
		return "user-offline"
	case EventUserJoined:
		return "user-joined"
	case EventUserLeft:
		return "user-left"
	case EventNewMessage:
		return "new-message"
	case EventMessageUpdated:
		return "message-updated"
	case EventMessageDeleted:
		return "message-deleted"
	case EventUserTyping:
		return "user-typing"
	case EventError:
		return "error"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is sent to connections to describe what happened in the system.
// A single Event value is shared by every recipient and must not be mutated after send.
type Event struct {
	Kind      EventKind
	RoomID    string
	User      *Identity // actor for presence, join/leave and typing events
	Message   *Message  // new-message, message-updated
	MessageID string    // message-deleted
	IsTyping  bool
	Error     *CoreError
}

// Message is a persisted message with its sender's identity attached.
type Message struct {
	ID        string
	RoomID    string
	Sender    *Identity // nil for system messages
	Type      store.MessageType
	Content   string
	FileURL   *string
	FileName  *string
	IsEdited  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func newMessage(m *store.Message, sender *Identity) *Message {
	return &Message{
		ID:        m.ID,
		RoomID:    m.RoomID,
		Sender:    sender,
		Type:      m.Type,
		Content:   m.Content,
		FileURL:   m.FileURL,
		FileName:  m.FileName,
		IsEdited:  m.IsEdited,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// HydrateMessages attaches sender identities to stored messages, preserving order.
func HydrateMessages(ctx context.Context, users store.UserStore, msgs []*store.Message) ([]*Message, error) {
	ids := make([]string, 0, len(msgs))
	seen := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if m.SenderID == nil {
			continue
		}
		if _, ok := seen[*m.SenderID]; ok {
			continue
		}
		seen[*m.SenderID] = struct{}{}
		ids = append(ids, *m.SenderID)
	}

	byID, err := users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load senders: %w", err)
	}

	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		var sender *Identity
		if m.SenderID != nil {
			if u, ok := byID[*m.SenderID]; ok {
				id := IdentityFromUser(u)
				sender = &id
			}
		}
		out = append(out, newMessage(m, sender))
	}
	return out, nil
}

// ErrorEvent wraps err for delivery to a single connection.
func ErrorEvent(err *CoreError) *Event {
	return &Event{Kind: EventError, Error: err}
}
