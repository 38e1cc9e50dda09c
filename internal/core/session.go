package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/huddle-server/internal/store"
)

// Presence scopes.
const (
	PresenceScopeRooms  = "rooms"
	PresenceScopeGlobal = "global"
)

// SessionManager owns the connection lifecycle: admission, room channel
// membership, inbound command dispatch and release.
type SessionManager struct {
	verifier   Verifier
	rooms      store.RoomStore
	presence   *PresenceTracker
	registry   *RoomRegistry
	router     *BroadcastRouter
	typing     *TypingCoordinator
	ingest     *Ingestor
	users      *Sequencer // serializes presence transitions per user
	scope      string
	sendBuffer int
	logger     *zerolog.Logger
}

// Admit verifies token and registers a new connection. The connection is
// subscribed to every room the user belongs to. On error nothing is
// registered and the caller must terminate the transport.
func (s *SessionManager) Admit(ctx context.Context, token string) (*Conn, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, coreError(ErrCodeUnauthorized, "missing token")
	}
	identity, err := s.verifier.Verify(ctx, token)
	if err != nil {
		s.logger.Debug().Err(err).Msg("token rejected")
		if ce, ok := AsCoreError(err); ok && ce.Code == ErrCodeUnauthorized {
			return nil, ce
		}
		return nil, coreError(ErrCodeUnauthorized, "invalid token")
	}

	c := NewConn(identity, s.sendBuffer)

	unlock := s.users.Lock(identity.ID)
	defer unlock()

	// The connection is visible to GrantRoom/RevokeRoom from here on, so a
	// membership change racing with the room load below reaches it.
	first := s.presence.Add(c)

	roomIDs, err := s.rooms.ListRoomIDsForUser(ctx, identity.ID)
	if err != nil {
		s.abandon(c)
		return nil, fmt.Errorf("load rooms: %w", err)
	}
	for _, roomID := range roomIDs {
		if c.addRoom(roomID) {
			s.registry.Subscribe(roomID, c)
		}
	}

	// A revoke that committed before the subscribe above found nothing to
	// unsubscribe; drop whatever storage no longer lists.
	current, err := s.rooms.ListRoomIDsForUser(ctx, identity.ID)
	if err != nil {
		s.abandon(c)
		return nil, fmt.Errorf("reload rooms: %w", err)
	}
	keep := make(map[string]struct{}, len(current))
	for _, roomID := range current {
		keep[roomID] = struct{}{}
	}
	for _, roomID := range c.Rooms() {
		if _, ok := keep[roomID]; !ok && c.removeRoom(roomID) {
			s.registry.Unsubscribe(roomID, c)
		}
	}

	rooms := c.Rooms()
	if first {
		s.announcePresence(c.Identity, rooms, true)
	}

	s.logger.Info().
		Str("conn_id", c.ID).
		Str("user_id", identity.ID).
		Int("rooms", len(rooms)).
		Msg("connection admitted")
	return c, nil
}

// Release tears c down. Only the first call has any effect.
func (s *SessionManager) Release(c *Conn) {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	c.Close()

	unlock := s.users.Lock(c.Identity.ID)
	defer unlock()

	roomIDs := s.dropRooms(c)
	if s.presence.Remove(c) {
		s.typing.ClearUser(c.Identity, roomIDs)
		s.announcePresence(c.Identity, roomIDs, false)
	}

	s.logger.Info().
		Str("conn_id", c.ID).
		Str("user_id", c.Identity.ID).
		Msg("connection released")
}

// abandon undoes a half-finished admission. The caller holds the user lock.
func (s *SessionManager) abandon(c *Conn) {
	c.released.Store(true)
	c.Close()
	s.dropRooms(c)
	s.presence.Remove(c)
}

// dropRooms unsubscribes c from every room channel and returns them.
func (s *SessionManager) dropRooms(c *Conn) []string {
	roomIDs := c.Rooms()
	for _, roomID := range roomIDs {
		c.removeRoom(roomID)
		s.registry.Unsubscribe(roomID, c)
	}
	return roomIDs
}

// JoinRoomChannel re-checks membership and subscribes c to roomID.
// Joining a channel c is already subscribed to is a no-op.
func (s *SessionManager) JoinRoomChannel(ctx context.Context, c *Conn, roomID string) error {
	if roomID == "" {
		return coreError(ErrCodeBadRequest, "roomId is required")
	}
	ok, err := s.ingest.IsMember(ctx, roomID, c.Identity.ID)
	if err != nil {
		return err
	}
	if !ok {
		return coreError(ErrCodeForbidden, "not a member of this room")
	}
	if !c.addRoom(roomID) {
		return nil
	}
	s.registry.Subscribe(roomID, c)
	if c.Released() {
		// Lost a race with Release; undo so the registry holds no dead conns.
		s.registry.Unsubscribe(roomID, c)
		return nil
	}

	id := c.Identity
	s.router.BroadcastToRoomExcept(roomID, &Event{Kind: EventUserJoined, RoomID: roomID, User: &id}, c.ID)
	return nil
}

// LeaveRoomChannel unsubscribes c from roomID. Always succeeds.
func (s *SessionManager) LeaveRoomChannel(c *Conn, roomID string) {
	if !c.removeRoom(roomID) {
		return
	}
	s.registry.Unsubscribe(roomID, c)

	id := c.Identity
	s.router.BroadcastToRoom(roomID, &Event{Kind: EventUserLeft, RoomID: roomID, User: &id})
}

// GrantRoom subscribes every live connection of user to roomID after a
// membership was added, and tells the room.
func (s *SessionManager) GrantRoom(roomID string, user Identity) {
	u := user
	s.router.BroadcastToRoom(roomID, &Event{Kind: EventUserJoined, RoomID: roomID, User: &u})
	for _, c := range s.presence.Conns(user.ID) {
		if c.addRoom(roomID) {
			s.registry.Subscribe(roomID, c)
		}
	}
}

// RevokeRoom unsubscribes every live connection of user from roomID after
// a membership was removed, and tells the room.
func (s *SessionManager) RevokeRoom(roomID string, user Identity) {
	for _, c := range s.presence.Conns(user.ID) {
		if c.removeRoom(roomID) {
			s.registry.Unsubscribe(roomID, c)
		}
	}
	s.typing.ClearUser(user, []string{roomID})
	u := user
	s.router.BroadcastToRoom(roomID, &Event{Kind: EventUserLeft, RoomID: roomID, User: &u})
}

// Dispatch executes one inbound command. Failures are reported to c alone
// as an error event.
func (s *SessionManager) Dispatch(ctx context.Context, c *Conn, cmd Command) {
	if err := s.handle(ctx, c, cmd); err != nil {
		ce, ok := AsCoreError(err)
		if !ok {
			s.logger.Error().Err(err).Str("conn_id", c.ID).Str("room_id", cmd.RoomID).Msg("command failed")
			ce = coreError("internal", "internal error")
		}
		s.router.SendTo(c, ErrorEvent(ce))
	}
}

func (s *SessionManager) handle(ctx context.Context, c *Conn, cmd Command) error {
	switch cmd.Kind {
	case CommandJoinRoom:
		return s.JoinRoomChannel(ctx, c, cmd.RoomID)
	case CommandLeaveRoom:
		s.LeaveRoomChannel(c, cmd.RoomID)
		return nil
	case CommandSendMessage:
		if cmd.RoomID == "" {
			return coreError(ErrCodeBadRequest, "chatRoomId is required")
		}
		_, err := s.ingest.Submit(ctx, cmd.RoomID, c.Identity.ID, cmd.Draft)
		return err
	case CommandTyping:
		if !c.InRoom(cmd.RoomID) {
			return coreError(ErrCodeForbidden, "not subscribed to this room")
		}
		s.typing.SetTyping(c, cmd.RoomID, cmd.IsTyping)
		return nil
	}
	return coreError(ErrCodeBadRequest, "unknown command")
}

func (s *SessionManager) announcePresence(user Identity, roomIDs []string, online bool) {
	u := user
	ev := &Event{Kind: EventUserOffline, User: &u}
	if online {
		ev.Kind = EventUserOnline
	}
	var delivered int
	if s.scope == PresenceScopeGlobal {
		delivered = s.router.BroadcastAll(ev, user.ID)
	} else {
		delivered = s.router.BroadcastToRooms(roomIDs, ev, user.ID)
	}
	s.logger.Debug().
		Str("user_id", user.ID).
		Str("event", ev.Kind.String()).
		Int("delivered", delivered).
		Msg("presence changed")
}
