package rooms

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/huddle-server/internal/core"
	"github.com/vovakirdan/huddle-server/internal/store"
	"github.com/vovakirdan/huddle-server/internal/store/sqlite"
)

type liveCall struct {
	grant  bool
	roomID string
	userID string
}

type recordingLive struct {
	mu    sync.Mutex
	calls []liveCall
}

func (r *recordingLive) GrantRoom(roomID string, user core.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, liveCall{grant: true, roomID: roomID, userID: user.ID})
}

func (r *recordingLive) RevokeRoom(roomID string, user core.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, liveCall{grant: false, roomID: roomID, userID: user.ID})
}

type fixture struct {
	svc   *Service
	store *sqlite.SQLiteStore
	live  *recordingLive
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	hub := core.NewHub(st, nil, core.Options{}, nil)
	live := &recordingLive{}
	return &fixture{
		svc:   New(st, live, hub.Ingest, nil, Options{DefaultPageSize: 50, MaxPageSize: 100}),
		store: st,
		live:  live,
	}
}

func (f *fixture) users(t *testing.T, names ...string) []*store.User {
	t.Helper()
	out := make([]*store.User, 0, len(names))
	for _, name := range names {
		u := &store.User{Email: name + "@example.com", Name: name}
		require.NoError(t, f.store.CreateUser(context.Background(), u))
		out = append(out, u)
	}
	return out
}

func strPtr(s string) *string { return &s }

func roleOf(d *Detail, userID string) store.Role {
	for _, m := range d.Members {
		if m.User.ID == userID {
			return m.Role
		}
	}
	return ""
}

func TestCreateTrio(t *testing.T) {
	f := newFixture(t)
	u := f.users(t, "a", "b", "c")

	d, created, err := f.svc.CreateRoom(context.Background(), u[0].ID, CreateParams{
		Kind:      store.RoomKindGroup,
		Name:      strPtr("Trio"),
		MemberIDs: []string{u[1].ID, u[2].ID},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Trio", *d.Room.Name)
	assert.Equal(t, 30, d.Room.MaxMembers)
	require.Len(t, d.Members, 3)
	assert.Equal(t, store.RoleAdmin, roleOf(d, u[0].ID))
	assert.Equal(t, store.RoleMember, roleOf(d, u[1].ID))
	assert.Equal(t, store.RoleMember, roleOf(d, u[2].ID))
	assert.Len(t, f.live.calls, 3)
}

func TestCreatePrivateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.users(t, "a", "b")

	first, created, err := f.svc.CreateRoom(ctx, u[0].ID, CreateParams{Kind: store.RoomKindPrivate, MemberIDs: []string{u[1].ID}})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, first.Room.Name)
	assert.Equal(t, 2, first.Room.MaxMembers)

	// Same pair from the other side.
	second, created, err := f.svc.CreateRoom(ctx, u[1].ID, CreateParams{Kind: store.RoomKindPrivate, MemberIDs: []string{u[0].ID}})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Room.ID, second.Room.ID)
	assert.Equal(t, store.RoleAdmin, roleOf(second, u[0].ID))
}

func TestCreateRoomValidation(t *testing.T) {
	f := newFixture(t)
	u := f.users(t, "a", "b", "c")

	many := make([]string, 0, MaxGroupInvitees+1)
	for i := 0; i <= MaxGroupInvitees; i++ {
		many = append(many, f.users(t, "m"+strings.Repeat("x", i))[0].ID)
	}

	tests := []struct {
		name   string
		params CreateParams
		want   error
	}{
		{name: "private with two others", params: CreateParams{Kind: store.RoomKindPrivate, MemberIDs: []string{u[1].ID, u[2].ID}}, want: core.ErrInvalidOperation},
		{name: "private with self only", params: CreateParams{Kind: store.RoomKindPrivate, MemberIDs: []string{u[0].ID}}, want: core.ErrInvalidOperation},
		{name: "empty group", params: CreateParams{Kind: store.RoomKindGroup}, want: core.ErrInvalidOperation},
		{name: "oversized group", params: CreateParams{Kind: store.RoomKindGroup, MemberIDs: many}, want: core.ErrInvalidOperation},
		{name: "unknown user", params: CreateParams{Kind: store.RoomKindGroup, MemberIDs: []string{"ghost"}}, want: core.ErrNotFound},
		{name: "long name", params: CreateParams{Kind: store.RoomKindGroup, Name: strPtr(strings.Repeat("n", 101)), MemberIDs: []string{u[1].ID}}, want: core.ErrBadRequest},
		{name: "long description", params: CreateParams{Kind: store.RoomKindGroup, Description: strPtr(strings.Repeat("d", 501)), MemberIDs: []string{u[1].ID}}, want: core.ErrBadRequest},
		{name: "bad kind", params: CreateParams{Kind: "channel", MemberIDs: []string{u[1].ID}}, want: core.ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.svc.CreateRoom(context.Background(), u[0].ID, tt.params)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	// Exactly 29 invitees is allowed.
	d, _, err := f.svc.CreateRoom(context.Background(), u[0].ID, CreateParams{Kind: store.RoomKindGroup, MemberIDs: many[:MaxGroupInvitees]})
	require.NoError(t, err)
	assert.Len(t, d.Members, store.GroupMaxMembers)

	// And the room is now full.
	_, _, err = f.svc.AddMember(context.Background(), u[0].ID, d.Room.ID, u[1].ID)
	assert.True(t, errors.Is(err, core.ErrRoomFull), "got %v", err)
}

func TestAddMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.users(t, "a", "b", "c", "d")

	d, _, err := f.svc.CreateRoom(ctx, u[0].ID, CreateParams{Kind: store.RoomKindGroup, MemberIDs: []string{u[1].ID}})
	require.NoError(t, err)
	roomID := d.Room.ID

	_, _, err = f.svc.AddMember(ctx, u[3].ID, roomID, u[2].ID)
	assert.True(t, errors.Is(err, core.ErrForbidden), "outsider cannot add: %v", err)

	_, _, err = f.svc.AddMember(ctx, u[0].ID, "missing", u[2].ID)
	assert.True(t, errors.Is(err, core.ErrNotFound))

	m, created, err := f.svc.AddMember(ctx, u[1].ID, roomID, u[2].ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, store.RoleMember, m.Role)

	_, created, err = f.svc.AddMember(ctx, u[1].ID, roomID, u[2].ID)
	require.NoError(t, err)
	assert.False(t, created)

	page, err := f.svc.ListMessages(ctx, u[2].ID, roomID, 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1, "one system message for one actual add")
	assert.Nil(t, page.Messages[0].Sender)
	assert.Equal(t, "b added c", page.Messages[0].Content)
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.users(t, "a", "b", "c", "x")

	trio, _, err := f.svc.CreateRoom(ctx, u[0].ID, CreateParams{Kind: store.RoomKindGroup, Name: strPtr("Trio"), MemberIDs: []string{u[1].ID, u[2].ID}})
	require.NoError(t, err)

	err = f.svc.RemoveMember(ctx, u[2].ID, trio.Room.ID, u[1].ID)
	assert.True(t, errors.Is(err, core.ErrForbidden), "member cannot remove: %v", err)

	require.NoError(t, f.svc.RemoveMember(ctx, u[0].ID, trio.Room.ID, u[1].ID))
	ok, err := f.store.IsMember(ctx, trio.Room.ID, u[1].ID)
	require.NoError(t, err)
	assert.False(t, ok)
	last := f.live.calls[len(f.live.calls)-1]
	assert.Equal(t, liveCall{grant: false, roomID: trio.Room.ID, userID: u[1].ID}, last)

	// Already satisfied.
	require.NoError(t, f.svc.RemoveMember(ctx, u[0].ID, trio.Room.ID, u[3].ID))

	// Would leave a single member.
	err = f.svc.RemoveMember(ctx, u[0].ID, trio.Room.ID, u[2].ID)
	assert.True(t, errors.Is(err, core.ErrInvalidOperation), "got %v", err)

	dm, _, err := f.svc.CreateRoom(ctx, u[0].ID, CreateParams{Kind: store.RoomKindPrivate, MemberIDs: []string{u[1].ID}})
	require.NoError(t, err)
	err = f.svc.RemoveMember(ctx, u[0].ID, dm.Room.ID, u[1].ID)
	assert.True(t, errors.Is(err, core.ErrInvalidOperation), "got %v", err)
}

func TestConcurrentRemovalsKeepTwoMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.users(t, "a", "b", "c")

	trio, _, err := f.svc.CreateRoom(ctx, u[0].ID, CreateParams{Kind: store.RoomKindGroup, Name: strPtr("Trio"), MemberIDs: []string{u[1].ID, u[2].ID}})
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, target := range []string{u[1].ID, u[2].ID} {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			errs[i] = f.svc.RemoveMember(ctx, u[0].ID, trio.Room.ID, target)
		}(i, target)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			assert.True(t, errors.Is(err, core.ErrInvalidOperation), "got %v", err)
			failed++
		}
	}
	assert.Equal(t, 1, failed)

	count, err := f.store.CountMembers(ctx, trio.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestReadSurfaceRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.users(t, "a", "b", "outsider")

	d, _, err := f.svc.CreateRoom(ctx, u[0].ID, CreateParams{Kind: store.RoomKindPrivate, MemberIDs: []string{u[1].ID}})
	require.NoError(t, err)

	_, err = f.svc.GetRoom(ctx, u[2].ID, d.Room.ID)
	assert.True(t, errors.Is(err, core.ErrForbidden))
	_, err = f.svc.ListMessages(ctx, u[2].ID, d.Room.ID, 1, 10)
	assert.True(t, errors.Is(err, core.ErrForbidden))
	assert.True(t, errors.Is(f.svc.MarkRead(ctx, u[2].ID, d.Room.ID), core.ErrForbidden))

	_, err = f.svc.GetRoom(ctx, u[0].ID, "missing")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestListMineUnreadAndPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.users(t, "a", "b")
	hub := core.NewHub(f.store, nil, core.Options{}, nil)

	d, _, err := f.svc.CreateRoom(ctx, u[0].ID, CreateParams{Kind: store.RoomKindPrivate, MemberIDs: []string{u[1].ID}})
	require.NoError(t, err)
	for _, text := range []string{"1", "2", "3"} {
		_, err := hub.Ingest.Submit(ctx, d.Room.ID, u[0].ID, core.Draft{Content: text})
		require.NoError(t, err)
	}

	mine, err := f.svc.ListMine(ctx, u[1].ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, 3, mine[0].UnreadCount)
	require.NotNil(t, mine[0].LastMessage)
	assert.Equal(t, "3", mine[0].LastMessage.Content)
	assert.Len(t, mine[0].Members, 2)

	require.NoError(t, f.svc.MarkRead(ctx, u[1].ID, d.Room.ID))
	mine, err = f.svc.ListMine(ctx, u[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 0, mine[0].UnreadCount)

	page, err := f.svc.ListMessages(ctx, u[1].ID, d.Room.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "2", page.Messages[0].Content)
	assert.Equal(t, "3", page.Messages[1].Content)
	assert.Equal(t, "a", page.Messages[0].Sender.DisplayName)

	page, err = f.svc.ListMessages(ctx, u[1].ID, d.Room.ID, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.Limit)
}
