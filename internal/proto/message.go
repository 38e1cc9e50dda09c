package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Inbound event names.
const (
	InboundJoinRoom    = "join-room"
	InboundLeaveRoom   = "leave-room"
	InboundSendMessage = "send-message"
	InboundTyping      = "typing"
)

// Outbound event names.
const (
	OutboundUserOnline     = "user-online"
	OutboundUserOffline    = "user-offline"
	OutboundUserJoined     = "user-joined"
	OutboundUserLeft       = "user-left"
	OutboundNewMessage     = "new-message"
	OutboundMessageUpdated = "message-updated"
	OutboundMessageDeleted = "message-deleted"
	OutboundUserTyping     = "user-typing"
	OutboundError          = "error"
)

// RoomData names a room for join-room and leave-room.
type RoomData struct {
	RoomID string `json:"roomId"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	Content    string  `json:"content"`
	Type       string  `json:"type"`
	ChatRoomID string  `json:"chatRoomId"`
	FileURL    *string `json:"fileUrl,omitempty"`
	FileName   *string `json:"fileName,omitempty"`
}

// TypingData toggles the typing indicator.
type TypingData struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// UserPresence is the payload of user-online and user-joined.
type UserPresence struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	RoomID string `json:"roomId,omitempty"`
}

// UserOffline is the payload of user-offline.
type UserOffline struct {
	UserID string `json:"userId"`
}

// UserLeft is the payload of user-left.
type UserLeft struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	RoomID string `json:"roomId,omitempty"`
}

// UserTyping is the payload of user-typing.
type UserTyping struct {
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	IsTyping bool   `json:"isTyping"`
	RoomID   string `json:"roomId,omitempty"`
}

// Sender is the public identity attached to a message.
type Sender struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Message is a hydrated chat message. Sender is null for system messages.
type Message struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Sender     *Sender   `json:"sender"`
	ChatRoomID string    `json:"chatRoomId"`
	FileURL    *string   `json:"fileUrl,omitempty"`
	FileName   *string   `json:"fileName,omitempty"`
	IsEdited   bool      `json:"isEdited"`
}

// MessageDeleted is the payload of message-deleted.
type MessageDeleted struct {
	ID         string `json:"id"`
	ChatRoomID string `json:"chatRoomId"`
}

// Error describes a channel-level error sent to one connection.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
