package core

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

type seqLock struct {
	mu   sync.Mutex
	refs int
}

// Sequencer is a keyed lock, one per room or user. Locks are reference counted and dropped
// once no goroutine holds or waits on them.
type Sequencer struct {
	locks *xsync.MapOf[string, *seqLock]
}

// NewSequencer returns an empty sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{locks: xsync.NewMapOf[string, *seqLock]()}
}

// Lock blocks until the caller owns key and returns the release func.
func (s *Sequencer) Lock(key string) (unlock func()) {
	l, _ := s.locks.Compute(key, func(l *seqLock, loaded bool) (*seqLock, bool) {
		if !loaded {
			l = &seqLock{}
		}
		l.refs++
		return l, false
	})
	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		s.locks.Compute(key, func(cur *seqLock, loaded bool) (*seqLock, bool) {
			if !loaded {
				return nil, true
			}
			cur.refs--
			return cur, cur.refs == 0
		})
	}
}

// Len returns the number of live locks.
func (s *Sequencer) Len() int {
	return s.locks.Size()
}
