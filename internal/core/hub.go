package core

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/huddle-server/internal/store"
)

// Options tunes the real-time subsystem.
type Options struct {
	SendBuffer    int
	TypingTTL     time.Duration
	PresenceScope string
	Clock         clock.Clock
}

// Hub bundles the real-time components around one store and verifier.
type Hub struct {
	Sessions *SessionManager
	Ingest   *Ingestor
	Router   *BroadcastRouter
	Registry *RoomRegistry
	Presence *PresenceTracker
	Typing   *TypingCoordinator
}

// NewHub creates a new real-time hub instance.
func NewHub(st store.Store, verifier Verifier, opts Options, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.PresenceScope == "" {
		opts.PresenceScope = PresenceScopeRooms
	}

	registry := NewRoomRegistry()
	presence := NewPresenceTracker()
	router := NewBroadcastRouter(registry, presence, logger)
	typing := NewTypingCoordinator(router, opts.Clock, opts.TypingTTL)
	ingest := NewIngestor(st, NewSequencer(), router, logger)

	sessions := &SessionManager{
		verifier:   verifier,
		rooms:      st,
		presence:   presence,
		registry:   registry,
		router:     router,
		typing:     typing,
		ingest:     ingest,
		users:      NewSequencer(),
		scope:      opts.PresenceScope,
		sendBuffer: opts.SendBuffer,
		logger:     logger,
	}
	// A subscriber that cannot keep up is released off the broadcasting goroutine.
	router.OnDeliveryFailure(func(c *Conn) { go sessions.Release(c) })

	return &Hub{
		Sessions: sessions,
		Ingest:   ingest,
		Router:   router,
		Registry: registry,
		Presence: presence,
		Typing:   typing,
	}
}
