package core

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// PresenceTracker maps each online user to their live connections.
// Connection sets are replaced wholesale on every change so readers never
// observe a set that is being mutated.
type PresenceTracker struct {
	users *xsync.MapOf[string, map[string]*Conn]
}

// NewPresenceTracker returns an empty tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{users: xsync.NewMapOf[string, map[string]*Conn]()}
}

// Add registers c under its user. It reports true when c is the user's
// first live connection.
func (p *PresenceTracker) Add(c *Conn) (first bool) {
	p.users.Compute(c.Identity.ID, func(old map[string]*Conn, loaded bool) (map[string]*Conn, bool) {
		next := make(map[string]*Conn, len(old)+1)
		for id, conn := range old {
			next[id] = conn
		}
		next[c.ID] = c
		first = len(old) == 0
		return next, false
	})
	return first
}

// Remove unregisters c. It reports true for exactly one caller: the one
// that removed the user's last live connection.
func (p *PresenceTracker) Remove(c *Conn) (last bool) {
	p.users.Compute(c.Identity.ID, func(old map[string]*Conn, loaded bool) (map[string]*Conn, bool) {
		if !loaded {
			return nil, true
		}
		if _, ok := old[c.ID]; !ok {
			return old, false
		}
		if len(old) == 1 {
			last = true
			return nil, true
		}
		next := make(map[string]*Conn, len(old)-1)
		for id, conn := range old {
			if id != c.ID {
				next[id] = conn
			}
		}
		return next, false
	})
	return last
}

// Online reports whether the user has at least one live connection.
func (p *PresenceTracker) Online(userID string) bool {
	set, ok := p.users.Load(userID)
	return ok && len(set) > 0
}

// Conns returns the user's live connections.
func (p *PresenceTracker) Conns(userID string) []*Conn {
	set, _ := p.users.Load(userID)
	out := make([]*Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// All returns every live connection.
func (p *PresenceTracker) All() []*Conn {
	var out []*Conn
	p.users.Range(func(_ string, set map[string]*Conn) bool {
		for _, c := range set {
			out = append(out, c)
		}
		return true
	})
	return out
}

// OnlineCount returns the number of online users.
func (p *PresenceTracker) OnlineCount() int {
	return p.users.Size()
}
