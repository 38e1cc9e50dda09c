package core

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Conn is a live connection as seen by the core layer.
type Conn struct {
	ID       string
	Identity Identity
	Events   chan *Event

	mu    sync.Mutex
	rooms map[string]struct{}

	closeOnce sync.Once
	done      chan struct{}
	released  atomic.Bool
}

// NewConn constructs a connection with an outbound queue of the given size.
func NewConn(identity Identity, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 1
	}
	return &Conn{
		ID:       uuid.NewString(),
		Identity: identity,
		Events:   make(chan *Event, buffer),
		rooms:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// TrySend queues ev without blocking. It reports false when the queue is
// full or the connection is closed.
func (c *Conn) TrySend(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

// Done is closed once the connection has been released.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close marks the connection closed. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Released reports whether the session manager has released the connection.
func (c *Conn) Released() bool {
	return c.released.Load()
}

// InRoom reports whether the connection is subscribed to roomID.
func (c *Conn) InRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

// Rooms returns a sorted snapshot of subscribed room IDs.
func (c *Conn) Rooms() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (c *Conn) addRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[roomID]; ok {
		return false
	}
	c.rooms[roomID] = struct{}{}
	return true
}

func (c *Conn) removeRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[roomID]; !ok {
		return false
	}
	delete(c.rooms, roomID)
	return true
}
