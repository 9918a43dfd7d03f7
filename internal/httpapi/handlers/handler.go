package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/hackchat/internal/chat"
	"github.com/suPer8Hu/hackchat/internal/common"
	"github.com/suPer8Hu/hackchat/internal/events"
)

type Handler struct {
	Store     *chat.Store
	Hub       *events.Hub
	Logger    *slog.Logger
	Heartbeat time.Duration
}

func NewHandler(store *chat.Store, hub *events.Hub, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Store: store, Hub: hub, Logger: logger, Heartbeat: 15 * time.Second}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"message": "pong"})
}

// fail maps store errors onto HTTP statuses.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		common.Fail(c, http.StatusBadRequest, 40001, err.Error())
	case errors.Is(err, chat.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40004, err.Error())
	case errors.Is(err, chat.ErrNoActiveConversation):
		common.Fail(c, http.StatusNotFound, 40005, err.Error())
	default:
		h.Logger.Error("request failed", "path", c.FullPath(), "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
