package core

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultTypingTTL bounds how long a typing indicator lives without refresh.
const DefaultTypingTTL = 3 * time.Second

type typingKey struct {
	roomID string
	userID string
}

type typingEntry struct {
	user      Identity
	originID  string // connection that raised the indicator
	expiresAt time.Time
	timer     *clock.Timer
}

// TypingCoordinator tracks who is typing in which room. Entries are never
// persisted and expire on their own.
type TypingCoordinator struct {
	clock   clock.Clock
	ttl     time.Duration
	router  *BroadcastRouter
	entries *xsync.MapOf[typingKey, *typingEntry]
}

// NewTypingCoordinator builds a coordinator. A nil clock uses wall time.
func NewTypingCoordinator(router *BroadcastRouter, clk clock.Clock, ttl time.Duration) *TypingCoordinator {
	if clk == nil {
		clk = clock.New()
	}
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingCoordinator{
		clock:   clk,
		ttl:     ttl,
		router:  router,
		entries: xsync.NewMapOf[typingKey, *typingEntry](),
	}
}

// SetTyping raises, refreshes or clears c's indicator in roomID and tells
// the rest of the room.
func (t *TypingCoordinator) SetTyping(c *Conn, roomID string, isTyping bool) {
	key := typingKey{roomID: roomID, userID: c.Identity.ID}
	if !isTyping {
		t.remove(key, nil)
		t.announce(roomID, c.Identity, false, c.ID)
		return
	}

	t.entries.Compute(key, func(old *typingEntry, loaded bool) (*typingEntry, bool) {
		if loaded {
			old.timer.Stop()
		}
		e := &typingEntry{
			user:      c.Identity,
			originID:  c.ID,
			expiresAt: t.clock.Now().Add(t.ttl),
		}
		e.timer = t.clock.AfterFunc(t.ttl, func() { t.expire(key, e) })
		return e, false
	})
	t.announce(roomID, c.Identity, true, c.ID)
}

// IsTyping reports whether userID currently has a live indicator in roomID.
func (t *TypingCoordinator) IsTyping(roomID, userID string) bool {
	_, ok := t.entries.Load(typingKey{roomID: roomID, userID: userID})
	return ok
}

// ClearUser drops userID's indicators in roomIDs, announcing each one that
// was live.
func (t *TypingCoordinator) ClearUser(user Identity, roomIDs []string) {
	for _, roomID := range roomIDs {
		if t.remove(typingKey{roomID: roomID, userID: user.ID}, nil) {
			t.announce(roomID, user, false, "")
		}
	}
}

func (t *TypingCoordinator) expire(key typingKey, e *typingEntry) {
	if t.remove(key, e) {
		t.announce(key.roomID, e.user, false, e.originID)
	}
}

// remove deletes the entry for key. When want is non-nil only that exact
// entry is deleted, so a stale timer cannot clear a refreshed indicator.
func (t *TypingCoordinator) remove(key typingKey, want *typingEntry) (removed bool) {
	t.entries.Compute(key, func(cur *typingEntry, loaded bool) (*typingEntry, bool) {
		if !loaded {
			return nil, true
		}
		if want != nil && cur != want {
			return cur, false
		}
		cur.timer.Stop()
		removed = true
		return nil, true
	})
	return removed
}

func (t *TypingCoordinator) announce(roomID string, user Identity, isTyping bool, exceptConnID string) {
	u := user
	t.router.BroadcastToRoomExcept(roomID, &Event{
		Kind:     EventUserTyping,
		RoomID:   roomID,
		User:     &u,
		IsTyping: isTyping,
	}, exceptConnID)
}
