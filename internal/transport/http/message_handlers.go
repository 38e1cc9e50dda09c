package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/huddle-server/internal/core"
	"github.com/vovakirdan/huddle-server/internal/proto"
	"github.com/vovakirdan/huddle-server/internal/service/rooms"
	"github.com/vovakirdan/huddle-server/internal/store"
)

// MessageHandlers provides HTTP handlers for message history and mutation.
type MessageHandlers struct {
	rooms  *rooms.Service
	ingest *core.Ingestor
	log    *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(roomService *rooms.Service, ingest *core.Ingestor, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		rooms:  roomService,
		ingest: ingest,
		log:    logger,
	}
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Content  string  `json:"content"`
	Type     string  `json:"type"`
	FileURL  *string `json:"fileUrl"`
	FileName *string `json:"fileName"`
}

// EditMessageRequest represents the edit message request body.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// MessagePageResponse is one page of room history.
type MessagePageResponse struct {
	Messages   []proto.Message `json:"messages"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"totalPages"`
}

// ListMessages returns one page of history, oldest first.
// GET /api/chat/rooms/:id/messages?page=1&limit=50
func (h *MessageHandlers) ListMessages(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	result, err := h.rooms.ListMessages(c.Request.Context(), uid, c.Param("id"), page, limit)
	if err != nil {
		writeError(c, h.log, err, "failed to list messages")
		return
	}

	msgs := make([]proto.Message, 0, len(result.Messages))
	for _, m := range result.Messages {
		msgs = append(msgs, messageToProto(m))
	}
	c.JSON(http.StatusOK, MessagePageResponse{
		Messages:   msgs,
		Total:      result.Total,
		Page:       result.Page,
		Limit:      result.Limit,
		TotalPages: result.TotalPages,
	})
}

// SendMessage submits a message through the same pipeline as the socket.
// POST /api/chat/rooms/:id/messages
func (h *MessageHandlers) SendMessage(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	msg, err := h.ingest.Submit(c.Request.Context(), c.Param("id"), uid, core.Draft{
		Type:     store.MessageType(storeEnum(req.Type)),
		Content:  req.Content,
		FileURL:  req.FileURL,
		FileName: req.FileName,
	})
	if err != nil {
		writeError(c, h.log, err, "failed to send message")
		return
	}
	c.JSON(http.StatusCreated, messageToProto(msg))
}

// EditMessage replaces the content of the caller's own message.
// PATCH /api/chat/messages/:id
func (h *MessageHandlers) EditMessage(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	msg, err := h.ingest.Edit(c.Request.Context(), c.Param("id"), uid, req.Content)
	if err != nil {
		writeError(c, h.log, err, "failed to edit message")
		return
	}
	c.JSON(http.StatusOK, messageToProto(msg))
}

// DeleteMessage removes the caller's own message.
// DELETE /api/chat/messages/:id
func (h *MessageHandlers) DeleteMessage(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	if err := h.ingest.Delete(c.Request.Context(), c.Param("id"), uid); err != nil {
		writeError(c, h.log, err, "failed to delete message")
		return
	}
	c.Status(http.StatusNoContent)
}
