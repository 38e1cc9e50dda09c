package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/huddle-server/internal/store"
)

// Ingestor persists messages and hands them to the router. Persist and
// broadcast for one room happen under that room's sequencer lock, so every
// subscriber sees messages in storage order.
type Ingestor struct {
	store  store.Store
	seq    *Sequencer
	router *BroadcastRouter
	logger *zerolog.Logger
	now    func() time.Time
}

// NewIngestor wires an ingest pipeline.
func NewIngestor(st store.Store, seq *Sequencer, router *BroadcastRouter, logger *zerolog.Logger) *Ingestor {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Ingestor{
		store:  st,
		seq:    seq,
		router: router,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// IsMember is the access-control gate for room-scoped operations.
// It always consults storage, never the live registry.
func (i *Ingestor) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	ok, err := i.store.IsMember(ctx, roomID, userID)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return ok, nil
}

func (i *Ingestor) requireMember(ctx context.Context, roomID, userID string) error {
	ok, err := i.IsMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return coreError(ErrCodeForbidden, "not a member of this room")
	}
	return nil
}

// Submit validates, persists and broadcasts a user message.
func (i *Ingestor) Submit(ctx context.Context, roomID, senderID string, draft Draft) (*Message, error) {
	draft, err := draft.normalize()
	if err != nil {
		return nil, err
	}
	if err := i.requireMember(ctx, roomID, senderID); err != nil {
		return nil, err
	}

	user, err := i.store.GetUserByID(ctx, senderID)
	if err != nil {
		return nil, FromStoreError(err, "user")
	}
	sender := IdentityFromUser(user)

	unlock := i.seq.Lock(roomID)
	defer unlock()

	stored := &store.Message{
		RoomID:   roomID,
		SenderID: &sender.ID,
		Type:     draft.Type,
		Content:  draft.Content,
		FileURL:  draft.FileURL,
		FileName: draft.FileName,
	}
	if err := i.store.SaveMessage(ctx, stored); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	msg := newMessage(stored, &sender)
	i.publish(ctx, &Event{Kind: EventNewMessage, RoomID: roomID, Message: msg}, stored.CreatedAt)
	return msg, nil
}

// SubmitSystem persists and broadcasts a message with no sender.
func (i *Ingestor) SubmitSystem(ctx context.Context, roomID, content string) (*Message, error) {
	unlock := i.seq.Lock(roomID)
	defer unlock()

	stored := &store.Message{
		RoomID:  roomID,
		Type:    store.MessageTypeSystem,
		Content: content,
	}
	if err := i.store.SaveMessage(ctx, stored); err != nil {
		return nil, fmt.Errorf("save system message: %w", err)
	}

	msg := newMessage(stored, nil)
	i.publish(ctx, &Event{Kind: EventNewMessage, RoomID: roomID, Message: msg}, stored.CreatedAt)
	return msg, nil
}

// Edit replaces the content of a message owned by userID.
func (i *Ingestor) Edit(ctx context.Context, messageID, userID, content string) (*Message, error) {
	if err := ValidateContent(content); err != nil {
		return nil, err
	}
	existing, err := i.ownedMessage(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}

	user, err := i.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, FromStoreError(err, "user")
	}
	sender := IdentityFromUser(user)

	unlock := i.seq.Lock(existing.RoomID)
	defer unlock()

	updated, err := i.store.UpdateMessageContent(ctx, messageID, content, i.now())
	if err != nil {
		return nil, FromStoreError(err, "message")
	}

	msg := newMessage(updated, &sender)
	i.router.BroadcastToRoom(existing.RoomID, &Event{Kind: EventMessageUpdated, RoomID: existing.RoomID, Message: msg})
	return msg, nil
}

// Delete removes a message owned by userID.
func (i *Ingestor) Delete(ctx context.Context, messageID, userID string) error {
	existing, err := i.ownedMessage(ctx, messageID, userID)
	if err != nil {
		return err
	}

	unlock := i.seq.Lock(existing.RoomID)
	defer unlock()

	if err := i.store.DeleteMessage(ctx, messageID); err != nil {
		return FromStoreError(err, "message")
	}

	i.router.BroadcastToRoom(existing.RoomID, &Event{Kind: EventMessageDeleted, RoomID: existing.RoomID, MessageID: messageID})
	return nil
}

func (i *Ingestor) ownedMessage(ctx context.Context, messageID, userID string) (*store.Message, error) {
	existing, err := i.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, FromStoreError(err, "message")
	}
	if err := i.requireMember(ctx, existing.RoomID, userID); err != nil {
		return nil, err
	}
	if existing.SenderID == nil || *existing.SenderID != userID {
		return nil, coreError(ErrCodeForbidden, "only the sender may change this message")
	}
	return existing, nil
}

func (i *Ingestor) publish(ctx context.Context, ev *Event, at time.Time) {
	delivered := i.router.BroadcastToRoom(ev.RoomID, ev)
	i.logger.Debug().
		Str("room_id", ev.RoomID).
		Str("message_id", ev.Message.ID).
		Int("delivered", delivered).
		Msg("message broadcast")

	if err := i.store.TouchRoom(ctx, ev.RoomID, at); err != nil {
		i.logger.Warn().Err(err).Str("room_id", ev.RoomID).Msg("touch room failed")
	}
}
