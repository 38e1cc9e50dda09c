package core

import (
	"github.com/rs/zerolog"
)

// BroadcastRouter delivers events to room subscribers and user connections.
// Delivery is fire-and-forget per connection; connections that cannot keep
// up are handed to the failure hook instead of stalling the others.
type BroadcastRouter struct {
	registry  *RoomRegistry
	presence  *PresenceTracker
	logger    *zerolog.Logger
	onFailure func(*Conn)
}

// NewBroadcastRouter wires a router over the registry and presence tracker.
func NewBroadcastRouter(registry *RoomRegistry, presence *PresenceTracker, logger *zerolog.Logger) *BroadcastRouter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BroadcastRouter{registry: registry, presence: presence, logger: logger}
}

// OnDeliveryFailure sets the hook called for every connection that could
// not receive an event. It runs outside any registry lock.
func (r *BroadcastRouter) OnDeliveryFailure(fn func(*Conn)) {
	r.onFailure = fn
}

// BroadcastToRoom delivers ev to every current subscriber of roomID.
func (r *BroadcastRouter) BroadcastToRoom(roomID string, ev *Event) int {
	return r.BroadcastToRoomExcept(roomID, ev, "")
}

// BroadcastToRoomExcept delivers ev to every subscriber of roomID except one connection.
func (r *BroadcastRouter) BroadcastToRoomExcept(roomID string, ev *Event, exceptConnID string) int {
	delivered, failed := r.registry.fanOut(roomID, ev, exceptConnID)
	r.fail(failed, ev)
	return delivered
}

// BroadcastToUser delivers ev to every live connection of userID.
func (r *BroadcastRouter) BroadcastToUser(userID string, ev *Event) int {
	return r.deliver(r.presence.Conns(userID), ev)
}

// BroadcastToRooms delivers ev once to each connection subscribed to any of
// roomIDs, skipping connections owned by exceptUserID.
func (r *BroadcastRouter) BroadcastToRooms(roomIDs []string, ev *Event, exceptUserID string) int {
	seen := make(map[string]struct{})
	var targets []*Conn
	for _, roomID := range roomIDs {
		for _, c := range r.registry.snapshot(roomID) {
			if c.Identity.ID == exceptUserID {
				continue
			}
			if _, ok := seen[c.ID]; ok {
				continue
			}
			seen[c.ID] = struct{}{}
			targets = append(targets, c)
		}
	}
	return r.deliver(targets, ev)
}

// BroadcastAll delivers ev to every live connection not owned by exceptUserID.
func (r *BroadcastRouter) BroadcastAll(ev *Event, exceptUserID string) int {
	var targets []*Conn
	for _, c := range r.presence.All() {
		if c.Identity.ID != exceptUserID {
			targets = append(targets, c)
		}
	}
	return r.deliver(targets, ev)
}

// SendTo delivers ev to a single connection.
func (r *BroadcastRouter) SendTo(c *Conn, ev *Event) bool {
	if c.TrySend(ev) {
		return true
	}
	r.fail([]*Conn{c}, ev)
	return false
}

func (r *BroadcastRouter) deliver(targets []*Conn, ev *Event) int {
	delivered := 0
	var failed []*Conn
	for _, c := range targets {
		if c.TrySend(ev) {
			delivered++
		} else {
			failed = append(failed, c)
		}
	}
	r.fail(failed, ev)
	return delivered
}

func (r *BroadcastRouter) fail(failed []*Conn, ev *Event) {
	for _, c := range failed {
		if c.Released() {
			continue
		}
		r.logger.Warn().
			Str("conn_id", c.ID).
			Str("user_id", c.Identity.ID).
			Str("room_id", ev.RoomID).
			Str("event", ev.Kind.String()).
			Str("code", ErrCodeDeliveryFailure).
			Msg("event delivery failed")
		if r.onFailure != nil {
			r.onFailure(c)
		}
	}
}
