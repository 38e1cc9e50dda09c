package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/huddle-server/internal/auth"
	"github.com/vovakirdan/huddle-server/internal/config"
	"github.com/vovakirdan/huddle-server/internal/core"
	"github.com/vovakirdan/huddle-server/internal/service/rooms"
)

// NewServer builds an HTTP server with the REST API and the /ws endpoint.
func NewServer(hub *core.Hub, authService *auth.Service, roomService *rooms.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(hub, authService, roomService, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(hub *core.Hub, authService *auth.Service, roomService *rooms.Service, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	apiHandlers := NewAPIHandlers(authService, logger)
	userHandlers := NewUserHandlers(authService, hub.Presence, logger)
	roomHandlers := NewRoomHandlers(roomService, hub.Presence, logger)
	messageHandlers := NewMessageHandlers(roomService, hub.Ingest, logger)

	router.GET("/health", healthHandler)

	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register", apiHandlers.Register)
		authGroup.POST("/login", apiHandlers.Login)
	}

	api := router.Group("/api")
	api.Use(AuthMiddleware(authService, logger))
	{
		api.GET("/users/profile", userHandlers.Profile)

		api.POST("/chat/rooms", roomHandlers.CreateRoom)
		api.GET("/chat/rooms", roomHandlers.ListRooms)
		api.GET("/chat/rooms/:id", roomHandlers.GetRoom)
		api.POST("/chat/rooms/:id/members/:userId", roomHandlers.AddMember)
		api.DELETE("/chat/rooms/:id/members/:userId", roomHandlers.RemoveMember)
		api.POST("/chat/rooms/:id/read", roomHandlers.MarkRead)

		api.GET("/chat/rooms/:id/messages", messageHandlers.ListMessages)
		api.POST("/chat/rooms/:id/messages", messageHandlers.SendMessage)
		api.PATCH("/chat/messages/:id", messageHandlers.EditMessage)
		api.DELETE("/chat/messages/:id", messageHandlers.DeleteMessage)
	}

	router.GET("/ws", gin.WrapH(NewWSHandler(hub, cfg, logger)))

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
