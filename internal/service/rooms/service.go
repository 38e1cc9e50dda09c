package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/huddle-server/internal/core"
	"github.com/vovakirdan/huddle-server/internal/store"
)

// Field limits.
const (
	MaxNameLength        = 100
	MaxDescriptionLength = 500
	MaxGroupInvitees     = store.GroupMaxMembers - 1
	// MinGroupMembers is the smallest size a group may shrink to.
	MinGroupMembers = 2
)

// Live keeps connected sessions in step with membership changes.
type Live interface {
	GrantRoom(roomID string, user core.Identity)
	RevokeRoom(roomID string, user core.Identity)
}

// Announcer posts system messages into a room.
type Announcer interface {
	SubmitSystem(ctx context.Context, roomID, content string) (*core.Message, error)
}

// Options tunes paging.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Service implements the room and membership lifecycle.
type Service struct {
	store     store.Store
	live      Live
	announcer Announcer
	logger    *zerolog.Logger
	opts      Options
	now       func() time.Time
}

// New creates a rooms service.
func New(st store.Store, live Live, announcer Announcer, logger *zerolog.Logger, opts Options) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 50
	}
	if opts.MaxPageSize < opts.DefaultPageSize {
		opts.MaxPageSize = opts.DefaultPageSize
	}
	return &Service{
		store:     st,
		live:      live,
		announcer: announcer,
		logger:    logger,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateParams describes a room to create.
type CreateParams struct {
	Kind        store.RoomKind
	Name        *string
	Description *string
	MemberIDs   []string // excluding the creator
}

// Member is a membership with the member's identity attached.
type Member struct {
	User       core.Identity
	Role       store.Role
	JoinedAt   time.Time
	LastReadAt *time.Time
}

// Detail is a room with its members.
type Detail struct {
	Room    *store.Room
	Members []Member
}

// Summary is a room as listed for one user.
type Summary struct {
	Detail
	LastMessage *core.Message
	UnreadCount int
}

// MessagePage is one page of room history.
type MessagePage struct {
	Messages   []*core.Message
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// DirectKey returns the dedupe key of the private room between two users.
func DirectKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}

// CreateRoom creates a room with the creator as admin. Creating a private
// room that already exists returns the existing room and created=false.
func (s *Service) CreateRoom(ctx context.Context, creatorID string, p CreateParams) (*Detail, bool, error) {
	others := dedupe(p.MemberIDs, creatorID)

	room := &store.Room{Kind: p.Kind}
	switch p.Kind {
	case store.RoomKindPrivate:
		if len(others) != 1 {
			return nil, false, core.NewError(core.ErrCodeInvalidOperation, "private rooms need exactly one other member")
		}
		key := DirectKey(creatorID, others[0])
		room.DirectKey = &key
		room.MaxMembers = store.PrivateMaxMembers
	case store.RoomKindGroup:
		if len(others) == 0 || len(others) > MaxGroupInvitees {
			return nil, false, core.NewError(core.ErrCodeInvalidOperation, "group rooms need between 1 and %d other members", MaxGroupInvitees)
		}
		name, err := cleanText(p.Name, MaxNameLength, "name")
		if err != nil {
			return nil, false, err
		}
		desc, err := cleanText(p.Description, MaxDescriptionLength, "description")
		if err != nil {
			return nil, false, err
		}
		room.Name = name
		room.Description = desc
		room.MaxMembers = store.GroupMaxMembers
	default:
		return nil, false, core.NewError(core.ErrCodeBadRequest, "unknown room type %q", p.Kind)
	}

	ids := append([]string{creatorID}, others...)
	users, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, false, fmt.Errorf("load members: %w", err)
	}
	for _, id := range ids {
		if _, ok := users[id]; !ok {
			return nil, false, core.NewError(core.ErrCodeNotFound, "user %s not found", id)
		}
	}

	if room.DirectKey != nil {
		existing, err := s.store.GetRoomByDirectKey(ctx, *room.DirectKey)
		if err == nil {
			detail, err := s.detail(ctx, existing)
			return detail, false, err
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, fmt.Errorf("lookup private room: %w", err)
		}
	}

	members := make([]store.Membership, 0, len(ids))
	members = append(members, store.Membership{UserID: creatorID, Role: store.RoleAdmin})
	for _, id := range others {
		members = append(members, store.Membership{UserID: id, Role: store.RoleMember})
	}

	if err := s.store.CreateRoom(ctx, room, members); err != nil {
		if errors.Is(err, store.ErrConflict) && room.DirectKey != nil {
			// Lost a race with an identical request.
			existing, getErr := s.store.GetRoomByDirectKey(ctx, *room.DirectKey)
			if getErr != nil {
				return nil, false, fmt.Errorf("lookup private room: %w", getErr)
			}
			detail, getErr := s.detail(ctx, existing)
			return detail, false, getErr
		}
		return nil, false, fmt.Errorf("create room: %w", err)
	}

	for _, id := range ids {
		s.live.GrantRoom(room.ID, core.IdentityFromUser(users[id]))
	}

	s.logger.Info().
		Str("room_id", room.ID).
		Str("user_id", creatorID).
		Str("kind", string(room.Kind)).
		Int("members", len(ids)).
		Msg("room created")

	detail, err := s.detail(ctx, room)
	return detail, true, err
}

// AddMember adds userID to roomID on behalf of actorID, who must be a member.
// Adding an existing member returns the membership unchanged.
func (s *Service) AddMember(ctx context.Context, actorID, roomID, userID string) (*Member, bool, error) {
	if _, err := s.store.GetRoomByID(ctx, roomID); err != nil {
		return nil, false, core.FromStoreError(err, "room")
	}
	if err := s.requireMember(ctx, roomID, actorID); err != nil {
		return nil, false, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, false, core.FromStoreError(err, "user")
	}

	m, created, err := s.store.AddMember(ctx, store.Membership{RoomID: roomID, UserID: userID, Role: store.RoleMember})
	if err != nil {
		return nil, false, core.FromStoreError(err, "room")
	}

	identity := core.IdentityFromUser(user)
	if created {
		s.live.GrantRoom(roomID, identity)
		s.announce(ctx, roomID, actorID, "%s added %s", identity.DisplayName)
	}
	return &Member{User: identity, Role: m.Role, JoinedAt: m.JoinedAt, LastReadAt: m.LastReadAt}, created, nil
}

// RemoveMember removes userID from a group room. Only admins may remove.
// Removing a non-member succeeds without changes.
func (s *Service) RemoveMember(ctx context.Context, actorID, roomID, userID string) error {
	room, err := s.store.GetRoomByID(ctx, roomID)
	if err != nil {
		return core.FromStoreError(err, "room")
	}
	if room.Kind == store.RoomKindPrivate {
		return core.NewError(core.ErrCodeInvalidOperation, "members cannot be removed from a private room")
	}

	actor, err := s.store.GetMembership(ctx, roomID, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.NewError(core.ErrCodeForbidden, "not a member of this room")
		}
		return fmt.Errorf("load membership: %w", err)
	}
	if actor.Role != store.RoleAdmin {
		return core.NewError(core.ErrCodeForbidden, "only admins can remove members")
	}

	removed, err := s.store.RemoveMember(ctx, roomID, userID, MinGroupMembers)
	if err != nil {
		if errors.Is(err, store.ErrMemberFloor) {
			return core.NewError(core.ErrCodeInvalidOperation, "a group needs at least %d members", MinGroupMembers)
		}
		return fmt.Errorf("remove member: %w", err)
	}
	if !removed {
		return nil
	}

	identity := core.Identity{ID: userID}
	if u, err := s.store.GetUserByID(ctx, userID); err == nil {
		identity = core.IdentityFromUser(u)
	}
	s.live.RevokeRoom(roomID, identity)
	s.announce(ctx, roomID, actorID, "%s removed %s", identity.DisplayName)
	return nil
}

// MarkRead records that userID has read roomID up to now.
func (s *Service) MarkRead(ctx context.Context, userID, roomID string) error {
	if err := s.requireMember(ctx, roomID, userID); err != nil {
		return err
	}
	if err := s.store.MarkRead(ctx, roomID, userID, s.now()); err != nil {
		return core.FromStoreError(err, "membership")
	}
	return nil
}

// GetRoom returns a room and its members to one of its members.
func (s *Service) GetRoom(ctx context.Context, userID, roomID string) (*Detail, error) {
	room, err := s.store.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, core.FromStoreError(err, "room")
	}
	if err := s.requireMember(ctx, roomID, userID); err != nil {
		return nil, err
	}
	return s.detail(ctx, room)
}

// ListMine lists the user's rooms, most recently active first.
func (s *Service) ListMine(ctx context.Context, userID string) ([]*Summary, error) {
	rooms, err := s.store.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	out := make([]*Summary, 0, len(rooms))
	for _, room := range rooms {
		detail, err := s.detail(ctx, room)
		if err != nil {
			return nil, err
		}
		summary := &Summary{Detail: *detail}

		for _, m := range detail.Members {
			if m.User.ID == userID {
				summary.UnreadCount, err = s.store.CountMessages(ctx, room.ID, m.LastReadAt)
				if err != nil {
					return nil, fmt.Errorf("count unread: %w", err)
				}
				break
			}
		}

		last, err := s.store.ListMessages(ctx, room.ID, 1, 1)
		if err != nil {
			return nil, fmt.Errorf("last message: %w", err)
		}
		if len(last) > 0 {
			hydrated, err := core.HydrateMessages(ctx, s.store, last)
			if err != nil {
				return nil, err
			}
			summary.LastMessage = hydrated[0]
		}
		out = append(out, summary)
	}
	return out, nil
}

// ListMessages returns one page of history, oldest first within the page.
// page starts at 1; limit falls back to the default and is capped.
func (s *Service) ListMessages(ctx context.Context, userID, roomID string, page, limit int) (*MessagePage, error) {
	if _, err := s.store.GetRoomByID(ctx, roomID); err != nil {
		return nil, core.FromStoreError(err, "room")
	}
	if err := s.requireMember(ctx, roomID, userID); err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.opts.DefaultPageSize
	}
	if limit > s.opts.MaxPageSize {
		limit = s.opts.MaxPageSize
	}

	total, err := s.store.CountMessages(ctx, roomID, nil)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	stored, err := s.store.ListMessages(ctx, roomID, page, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs, err := core.HydrateMessages(ctx, s.store, stored)
	if err != nil {
		return nil, err
	}

	return &MessagePage{
		Messages:   msgs,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

func (s *Service) requireMember(ctx context.Context, roomID, userID string) error {
	ok, err := s.store.IsMember(ctx, roomID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return core.NewError(core.ErrCodeForbidden, "not a member of this room")
	}
	return nil
}

func (s *Service) detail(ctx context.Context, room *store.Room) (*Detail, error) {
	memberships, err := s.store.ListMembers(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	ids := make([]string, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.UserID)
	}
	users, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}

	members := make([]Member, 0, len(memberships))
	for _, m := range memberships {
		identity := core.Identity{ID: m.UserID}
		if u, ok := users[m.UserID]; ok {
			identity = core.IdentityFromUser(u)
		}
		members = append(members, Member{
			User:       identity,
			Role:       m.Role,
			JoinedAt:   m.JoinedAt,
			LastReadAt: m.LastReadAt,
		})
	}
	return &Detail{Room: room, Members: members}, nil
}

// announce posts "<actor> <verb> <subject>" as a system message. Failures
// are logged; the membership change itself already succeeded.
func (s *Service) announce(ctx context.Context, roomID, actorID, format, subject string) {
	actorName := actorID
	if u, err := s.store.GetUserByID(ctx, actorID); err == nil {
		actorName = u.Name
	}
	if _, err := s.announcer.SubmitSystem(ctx, roomID, fmt.Sprintf(format, actorName, subject)); err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID).Msg("system message failed")
	}
}

func dedupe(ids []string, exclude string) []string {
	seen := map[string]struct{}{exclude: {}}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func cleanText(v *string, max int, field string) (*string, error) {
	if v == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > max {
		return nil, core.NewError(core.ErrCodeBadRequest, "%s exceeds %d characters", field, max)
	}
	return &trimmed, nil
}
