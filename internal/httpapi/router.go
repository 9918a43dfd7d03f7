package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/hackchat/internal/common"
	"github.com/suPer8Hu/hackchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/hackchat/internal/httpapi/middleware"
)

// NewRouter wires the API. metrics may be nil.
func NewRouter(h *handlers.Handler, metrics http.Handler, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	// conversations
	r.GET("/conversations", h.ListConversations)
	r.POST("/conversations", h.CreateConversation)
	r.DELETE("/conversations/:id", h.DeleteConversation)
	r.GET("/conversations/:id/messages", h.ListMessages)
	r.POST("/conversations/:id/messages", h.SendMessage)
	r.POST("/conversations/:id/read", h.MarkRead)
	r.GET("/conversations/:id/unread", h.UnreadCount)

	r.GET("/active", h.ActiveConversation)
	r.PUT("/active", h.SwitchActive)

	r.PUT("/theme", h.SetTheme)
	r.POST("/theme/toggle", h.ToggleTheme)

	r.GET("/events", h.Events)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
	return r
}
