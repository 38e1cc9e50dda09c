package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequencerSerializesPerRoom(t *testing.T) {
	s := NewSequencer()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("room")
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, s.Len(), "locks are released once idle")
}

func TestSequencerIndependentRooms(t *testing.T) {
	s := NewSequencer()
	unlockA := s.Lock("a")
	// Would deadlock if rooms shared a lock.
	unlockB := s.Lock("b")
	assert.Equal(t, 2, s.Len())
	unlockB()
	unlockA()
	assert.Equal(t, 0, s.Len())
}
