package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/huddle-server/internal/store"
	"github.com/vovakirdan/huddle-server/internal/store/sqlite"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// assertNoEvent drains ch for wait and fails if an event of kind shows up.
func assertNoEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	deadline := time.After(wait)
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event %v: %+v", kind, ev)
			}
		case <-deadline:
			return
		}
	}
}

func drain(ch <-chan *Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// tokenVerifier accepts tokens of the form "token-<userID>" for known users.
type tokenVerifier struct {
	users store.UserStore
}

func (v tokenVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	const prefix = "token-"
	if len(token) <= len(prefix) || token[:len(prefix)] != prefix {
		return Identity{}, ErrUnauthorized
	}
	u, err := v.users.GetUserByID(ctx, token[len(prefix):])
	if err != nil {
		return Identity{}, ErrUnauthorized
	}
	return IdentityFromUser(u), nil
}

type fixture struct {
	hub   *Hub
	store *sqlite.SQLiteStore
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return &fixture{
		hub:   NewHub(st, tokenVerifier{users: st}, opts, nil),
		store: st,
	}
}

func (f *fixture) user(t *testing.T, name string) *store.User {
	t.Helper()
	u := &store.User{Email: name + "@example.com", Name: name, Avatar: name + ".png"}
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) group(t *testing.T, admin *store.User, members ...*store.User) string {
	t.Helper()
	name := "group"
	room := &store.Room{Kind: store.RoomKindGroup, Name: &name, MaxMembers: store.GroupMaxMembers}
	ms := []store.Membership{{UserID: admin.ID, Role: store.RoleAdmin}}
	for _, m := range members {
		ms = append(ms, store.Membership{UserID: m.ID, Role: store.RoleMember})
	}
	require.NoError(t, f.store.CreateRoom(context.Background(), room, ms))
	return room.ID
}

func (f *fixture) admit(t *testing.T, u *store.User) *Conn {
	t.Helper()
	c, err := f.hub.Sessions.Admit(context.Background(), "token-"+u.ID)
	require.NoError(t, err)
	return c
}

// hookedStore runs afterList once, right after the first room ID lookup for
// userID returns. It stands in for a membership change landing mid-admission.
type hookedStore struct {
	store.Store

	userID    string
	afterList func()
	once      sync.Once
}

func (s *hookedStore) ListRoomIDsForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.Store.ListRoomIDsForUser(ctx, userID)
	if err == nil && userID == s.userID && s.afterList != nil {
		s.once.Do(s.afterList)
	}
	return ids, err
}

// newHookedFixture is newFixture with the hub reading rooms through a hookedStore.
func newHookedFixture(t *testing.T, opts Options) (*fixture, *hookedStore) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	hooked := &hookedStore{Store: st}
	return &fixture{
		hub:   NewHub(hooked, tokenVerifier{users: st}, opts, nil),
		store: st,
	}, hooked
}
