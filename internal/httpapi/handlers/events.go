package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Events streams committed changes as server-sent events.
func (h *Handler) Events(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "streaming unsupported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	changes, cancel := h.Hub.Subscribe()
	defer cancel()

	ticker := time.NewTicker(h.Heartbeat)
	defer ticker.Stop()

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, b)
		flusher.Flush()
	}

	// tells the client the subscription is live
	writeJSON("ready", gin.H{"type": "ready"})

	ctx := c.Request.Context()
	for {
		select {
		case ch, ok := <-changes:
			if !ok {
				return
			}
			writeJSON("change", ch)

		case <-ticker.C:
			writeJSON("ping", gin.H{
				"type": "ping",
				"ts":   time.Now().Unix(),
			})

		case <-ctx.Done():
			return
		}
	}
}
