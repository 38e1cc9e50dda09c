package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/huddle-server/internal/core"
	"github.com/vovakirdan/huddle-server/internal/proto"
	"github.com/vovakirdan/huddle-server/internal/service/rooms"
	"github.com/vovakirdan/huddle-server/internal/store"
)

// RoomHandlers provides HTTP handlers for room management endpoints.
type RoomHandlers struct {
	rooms    *rooms.Service
	presence *core.PresenceTracker
	log      *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(roomService *rooms.Service, presence *core.PresenceTracker, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		rooms:    roomService,
		presence: presence,
		log:      logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Type        string   `json:"type" binding:"required"`
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	MemberIDs   []string `json:"memberIds"`
}

// MemberResponse represents a room member in API responses.
type MemberResponse struct {
	User       UserResponse `json:"user"`
	Role       string       `json:"role"`
	JoinedAt   time.Time    `json:"joinedAt"`
	LastReadAt *time.Time   `json:"lastReadAt,omitempty"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID          string           `json:"id"`
	Type        string           `json:"type"`
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	MaxMembers  int              `json:"maxMembers"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	Members     []MemberResponse `json:"members"`
	LastMessage *proto.Message   `json:"lastMessage,omitempty"`
	UnreadCount *int             `json:"unreadCount,omitempty"`
}

func (h *RoomHandlers) memberToResponse(m rooms.Member) MemberResponse {
	return MemberResponse{
		User: UserResponse{
			ID:       m.User.ID,
			Name:     m.User.DisplayName,
			Avatar:   m.User.AvatarRef,
			IsOnline: h.presence.Online(m.User.ID),
		},
		Role:       wireEnum(string(m.Role)),
		JoinedAt:   m.JoinedAt,
		LastReadAt: m.LastReadAt,
	}
}

func (h *RoomHandlers) detailToResponse(d *rooms.Detail) RoomResponse {
	members := make([]MemberResponse, 0, len(d.Members))
	for _, m := range d.Members {
		members = append(members, h.memberToResponse(m))
	}
	return RoomResponse{
		ID:          d.Room.ID,
		Type:        wireEnum(string(d.Room.Kind)),
		Name:        d.Room.Name,
		Description: d.Room.Description,
		MaxMembers:  d.Room.MaxMembers,
		CreatedAt:   d.Room.CreatedAt,
		UpdatedAt:   d.Room.UpdatedAt,
		Members:     members,
	}
}

// CreateRoom handles room creation. An existing private room is returned with 200.
// POST /api/chat/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	detail, created, err := h.rooms.CreateRoom(c.Request.Context(), uid, rooms.CreateParams{
		Kind:        store.RoomKind(storeEnum(req.Type)),
		Name:        req.Name,
		Description: req.Description,
		MemberIDs:   req.MemberIDs,
	})
	if err != nil {
		writeError(c, h.log, err, "failed to create room")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, h.detailToResponse(detail))
}

// ListRooms lists the caller's rooms, most recently active first.
// GET /api/chat/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	summaries, err := h.rooms.ListMine(c.Request.Context(), uid)
	if err != nil {
		writeError(c, h.log, err, "failed to list rooms")
		return
	}

	response := make([]RoomResponse, 0, len(summaries))
	for _, s := range summaries {
		r := h.detailToResponse(&s.Detail)
		unread := s.UnreadCount
		r.UnreadCount = &unread
		if s.LastMessage != nil {
			last := messageToProto(s.LastMessage)
			r.LastMessage = &last
		}
		response = append(response, r)
	}

	h.log.Debug().Str("user_id", uid).Int("room_count", len(response)).Msg("rooms listed successfully")
	c.JSON(http.StatusOK, response)
}

// GetRoom returns one room to a member.
// GET /api/chat/rooms/:id
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	detail, err := h.rooms.GetRoom(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		writeError(c, h.log, err, "failed to get room")
		return
	}
	c.JSON(http.StatusOK, h.detailToResponse(detail))
}

// AddMember adds a user to a room.
// POST /api/chat/rooms/:id/members/:userId
func (h *RoomHandlers) AddMember(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	member, created, err := h.rooms.AddMember(c.Request.Context(), uid, c.Param("id"), c.Param("userId"))
	if err != nil {
		writeError(c, h.log, err, "failed to add member")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, h.memberToResponse(*member))
}

// RemoveMember removes a user from a group room. Admins only.
// DELETE /api/chat/rooms/:id/members/:userId
func (h *RoomHandlers) RemoveMember(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	if err := h.rooms.RemoveMember(c.Request.Context(), uid, c.Param("id"), c.Param("userId")); err != nil {
		writeError(c, h.log, err, "failed to remove member")
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkRead records that the caller has read the room.
// POST /api/chat/rooms/:id/read
func (h *RoomHandlers) MarkRead(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	if err := h.rooms.MarkRead(c.Request.Context(), uid, c.Param("id")); err != nil {
		writeError(c, h.log, err, "failed to mark room read")
		return
	}
	c.Status(http.StatusNoContent)
}
