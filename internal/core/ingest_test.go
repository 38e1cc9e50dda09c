package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/huddle-server/internal/store"
)

func TestSubmitRoundTrip(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	room := f.group(t, alice, bob)

	url := "https://cdn.example.com/cat.png"
	name := "cat.png"
	sent, err := f.hub.Ingest.Submit(ctx, room, alice.ID, Draft{
		Type:     store.MessageTypeImage,
		Content:  "look 🐈",
		FileURL:  &url,
		FileName: &name,
	})
	require.NoError(t, err)
	require.NotEmpty(t, sent.ID)
	assert.Equal(t, "alice", sent.Sender.DisplayName)

	page, err := f.store.ListMessages(ctx, room, 1, 50)
	require.NoError(t, err)
	require.Len(t, page, 1)
	got := page[0]
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, "look 🐈", got.Content)
	assert.Equal(t, store.MessageTypeImage, got.Type)
	assert.Equal(t, url, *got.FileURL)
	assert.Equal(t, name, *got.FileName)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	alice := f.user(t, "alice")
	room := f.group(t, alice)

	tests := []struct {
		name  string
		draft Draft
	}{
		{name: "empty content", draft: Draft{Content: "  "}},
		{name: "too long", draft: Draft{Content: strings.Repeat("x", MaxContentLength+1)}},
		{name: "system type", draft: Draft{Type: store.MessageTypeSystem, Content: "spoof"}},
		{name: "unknown type", draft: Draft{Type: "video", Content: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.hub.Ingest.Submit(ctx, room, alice.ID, tt.draft)
			assert.True(t, errors.Is(err, ErrBadRequest), "got %v", err)
		})
	}

	// Exactly at the limit is fine; limit counts characters, not bytes.
	_, err := f.hub.Ingest.Submit(ctx, room, alice.ID, Draft{Content: strings.Repeat("é", MaxContentLength)})
	require.NoError(t, err)
}

func TestSubmitByNonMemberHasNoEffect(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	alice := f.user(t, "alice")
	mallory := f.user(t, "mallory")
	room := f.group(t, alice)

	aliceConn := f.admit(t, alice)

	_, err := f.hub.Ingest.Submit(ctx, room, mallory.ID, Draft{Content: "hi"})
	assert.True(t, errors.Is(err, ErrForbidden))

	count, err := f.store.CountMessages(ctx, room, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
	assertNoEvent(t, aliceConn.Events, EventNewMessage, 50*time.Millisecond)
}

func TestSubmitSystemHasNoSender(t *testing.T) {
	f := newFixture(t, Options{})
	alice := f.user(t, "alice")
	room := f.group(t, alice)
	aliceConn := f.admit(t, alice)

	_, err := f.hub.Ingest.SubmitSystem(context.Background(), room, "alice created the room")
	require.NoError(t, err)

	ev := mustEvent(t, aliceConn.Events, EventNewMessage)
	assert.Nil(t, ev.Message.Sender)
	assert.Equal(t, store.MessageTypeSystem, ev.Message.Type)
}

func TestEditAndDelete(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	room := f.group(t, alice, bob)
	bobConn := f.admit(t, bob)

	msg, err := f.hub.Ingest.Submit(ctx, room, alice.ID, Draft{Content: "helo"})
	require.NoError(t, err)
	drain(bobConn.Events)

	_, err = f.hub.Ingest.Edit(ctx, msg.ID, bob.ID, "hijack")
	assert.True(t, errors.Is(err, ErrForbidden), "non-sender edit: %v", err)
	assert.True(t, errors.Is(f.hub.Ingest.Delete(ctx, msg.ID, bob.ID), ErrForbidden))

	_, err = f.hub.Ingest.Edit(ctx, "missing", alice.ID, "x")
	assert.True(t, errors.Is(err, ErrNotFound))

	edited, err := f.hub.Ingest.Edit(ctx, msg.ID, alice.ID, "hello")
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	ev := mustEvent(t, bobConn.Events, EventMessageUpdated)
	assert.Equal(t, "hello", ev.Message.Content)
	assert.Equal(t, alice.ID, ev.Message.Sender.ID)

	require.NoError(t, f.hub.Ingest.Delete(ctx, msg.ID, alice.ID))
	ev = mustEvent(t, bobConn.Events, EventMessageDeleted)
	assert.Equal(t, msg.ID, ev.MessageID)
	assert.Equal(t, room, ev.RoomID)

	assert.True(t, errors.Is(f.hub.Ingest.Delete(ctx, msg.ID, alice.ID), ErrNotFound))
}

func TestConcurrentSubmitsKeepOneOrder(t *testing.T) {
	f := newFixture(t, Options{SendBuffer: 128})
	ctx := context.Background()
	a := f.user(t, "a")
	b := f.user(t, "b")
	c := f.user(t, "c")
	room := f.group(t, a, b, c)

	watchers := []*Conn{f.admit(t, b), f.admit(t, c)}
	for _, w := range watchers {
		drain(w.Events)
	}

	const perSender = 10
	var wg sync.WaitGroup
	for _, sender := range []string{a.ID, b.ID, c.ID} {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := f.hub.Ingest.Submit(ctx, room, sender, Draft{Content: fmt.Sprintf("%s-%d", sender, i)})
				assert.NoError(t, err)
			}
		}(sender)
	}
	wg.Wait()

	stored, err := f.store.ListMessages(ctx, room, 1, 100)
	require.NoError(t, err)
	require.Len(t, stored, 3*perSender)

	for _, w := range watchers {
		var seen []string
		for len(seen) < 3*perSender {
			ev := mustEvent(t, w.Events, EventNewMessage)
			seen = append(seen, ev.Message.ID)
		}
		for i, msg := range stored {
			assert.Equal(t, msg.ID, seen[i], "position %d", i)
		}
	}
}
