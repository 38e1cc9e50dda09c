package core

import (
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// roomChannel is the live subscriber set of one room.
// mu serializes fan-out so every subscriber sees the same relative order.
type roomChannel struct {
	mu   sync.Mutex
	subs map[string]*Conn
}

// RoomRegistry maps room IDs to currently subscribed connections.
// Channels exist only while they have subscribers.
type RoomRegistry struct {
	rooms *xsync.MapOf[string, *roomChannel]
}

// NewRoomRegistry returns an empty registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: xsync.NewMapOf[string, *roomChannel]()}
}

// Subscribe adds c to the room channel. Returns true if newly added.
func (r *RoomRegistry) Subscribe(roomID string, c *Conn) (added bool) {
	r.rooms.Compute(roomID, func(ch *roomChannel, loaded bool) (*roomChannel, bool) {
		if !loaded {
			ch = &roomChannel{subs: make(map[string]*Conn)}
		}
		ch.mu.Lock()
		_, exists := ch.subs[c.ID]
		ch.subs[c.ID] = c
		ch.mu.Unlock()
		added = !exists
		return ch, false
	})
	return added
}

// Unsubscribe removes c from the room channel. Returns true if removed.
func (r *RoomRegistry) Unsubscribe(roomID string, c *Conn) (removed bool) {
	r.rooms.Compute(roomID, func(ch *roomChannel, loaded bool) (*roomChannel, bool) {
		if !loaded {
			return nil, true
		}
		ch.mu.Lock()
		_, removed = ch.subs[c.ID]
		delete(ch.subs, c.ID)
		empty := len(ch.subs) == 0
		ch.mu.Unlock()
		return ch, empty
	})
	return removed
}

// SubscribersOf returns the IDs of connections currently subscribed to roomID.
func (r *RoomRegistry) SubscribersOf(roomID string) []string {
	conns := r.snapshot(roomID)
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}

// ActiveRooms returns the number of rooms with at least one subscriber.
func (r *RoomRegistry) ActiveRooms() int {
	return r.rooms.Size()
}

func (r *RoomRegistry) snapshot(roomID string) []*Conn {
	ch, ok := r.rooms.Load(roomID)
	if !ok {
		return nil
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make([]*Conn, 0, len(ch.subs))
	for _, c := range ch.subs {
		out = append(out, c)
	}
	return out
}

// fanOut queues ev on every subscriber except exceptConnID. Delivery never
// blocks; connections that could not take the event are returned.
func (r *RoomRegistry) fanOut(roomID string, ev *Event, exceptConnID string) (delivered int, failed []*Conn) {
	ch, ok := r.rooms.Load(roomID)
	if !ok {
		return 0, nil
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for id, c := range ch.subs {
		if id == exceptConnID {
			continue
		}
		if c.TrySend(ev) {
			delivered++
		} else {
			failed = append(failed, c)
		}
	}
	return delivered, failed
}
