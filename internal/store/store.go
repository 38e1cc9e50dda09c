package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRoomFull is returned when a membership insert would exceed max_members.
	ErrRoomFull = errors.New("room is full")
	// ErrConflict is returned on unique constraint violations.
	ErrConflict = errors.New("conflict")
	// ErrMemberFloor is returned when a removal would leave fewer members than allowed.
	ErrMemberFloor = errors.New("room would fall below its member minimum")
)

// User represents a registered account.
type User struct {
	ID           string
	Email        string
	Name         string
	Avatar       string
	PasswordHash string
	CreatedAt    time.Time
}

// RoomKind defines the two supported room shapes.
type RoomKind string

const (
	RoomKindPrivate RoomKind = "private"
	RoomKindGroup   RoomKind = "group"
)

// Member caps fixed at creation.
const (
	PrivateMaxMembers = 2
	GroupMaxMembers   = 30
)

// Room represents a chat room.
type Room struct {
	ID          string
	Kind        RoomKind
	Name        *string // nil for private rooms
	Description *string
	MaxMembers  int
	DirectKey   *string // private rooms only: "dm:{minUserID}:{maxUserID}"
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Role is a member's permission level inside a room.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Membership binds a user to a room.
type Membership struct {
	RoomID     string
	UserID     string
	Role       Role
	JoinedAt   time.Time
	LastReadAt *time.Time
}

// MessageType classifies message content.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}

// Message represents a persisted chat message.
type Message struct {
	ID        string
	RoomID    string
	SenderID  *string // nil for system messages
	Type      MessageType
	Content   string
	FileURL   *string
	FileName  *string
	IsEdited  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser inserts a user; ID and CreatedAt are assigned by the store.
	CreateUser(ctx context.Context, user *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUsersByIDs returns the users that exist among ids, keyed by ID.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*User, error)
}

// RoomStore handles room and membership persistence.
type RoomStore interface {
	// CreateRoom persists the room and all initial memberships in one transaction.
	// For private rooms a DirectKey collision returns ErrConflict.
	CreateRoom(ctx context.Context, room *Room, members []Membership) error

	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id string) (*Room, error)

	// GetRoomByDirectKey retrieves a private room by its direct key.
	GetRoomByDirectKey(ctx context.Context, directKey string) (*Room, error)

	// ListRoomsForUser lists rooms the user belongs to, most recently updated first.
	ListRoomsForUser(ctx context.Context, userID string) ([]*Room, error)

	// ListRoomIDsForUser lists only the IDs of the user's rooms.
	ListRoomIDsForUser(ctx context.Context, userID string) ([]string, error)

	// TouchRoom sets updated_at.
	TouchRoom(ctx context.Context, roomID string, at time.Time) error

	// AddMember inserts a membership unless present. Returns the stored
	// membership and whether it was created. ErrRoomFull when at capacity.
	AddMember(ctx context.Context, m Membership) (*Membership, bool, error)

	// RemoveMember deletes a membership, reporting whether one existed.
	// Missing rows are not an error. When minRemaining > 0 the removal is
	// refused with ErrMemberFloor if fewer members would remain; the check
	// and the delete run in one transaction.
	RemoveMember(ctx context.Context, roomID, userID string, minRemaining int) (bool, error)

	// GetMembership retrieves a single membership.
	GetMembership(ctx context.Context, roomID, userID string) (*Membership, error)

	// IsMember checks if user is a member of the room.
	IsMember(ctx context.Context, roomID, userID string) (bool, error)

	// ListMembers lists memberships of a room ordered by join time.
	ListMembers(ctx context.Context, roomID string) ([]*Membership, error)

	// CountMembers counts memberships of a room.
	CountMembers(ctx context.Context, roomID string) (int, error)

	// MarkRead sets last_read_at on a membership.
	MarkRead(ctx context.Context, roomID, userID string, at time.Time) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message; ID, CreatedAt and UpdatedAt are assigned by the store.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// UpdateMessageContent replaces content and flags the message as edited.
	UpdateMessageContent(ctx context.Context, id, content string, at time.Time) (*Message, error)

	// DeleteMessage removes a message.
	DeleteMessage(ctx context.Context, id string) error

	// ListMessages returns one page of a room's history, newest page first,
	// each page in chronological order. page starts at 1.
	ListMessages(ctx context.Context, roomID string, page, limit int) ([]*Message, error)

	// CountMessages counts a room's messages created after since (all when nil).
	CountMessages(ctx context.Context, roomID string, since *time.Time) (int, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
