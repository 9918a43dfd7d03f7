package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/hackchat/internal/chat"
	"github.com/suPer8Hu/hackchat/internal/common"
	"github.com/suPer8Hu/hackchat/internal/view"
)

func (h *Handler) ListConversations(c *gin.Context) {
	st := h.Store.Snapshot()
	common.OK(c, gin.H{
		"conversations":          view.FilterConversations(st, c.Query("q")),
		"active_conversation_id": st.ActiveConversationID,
		"theme":                  st.Theme,
	})
}

type createConversationReq struct {
	Name   string `json:"name" binding:"required"`
	Avatar string `json:"avatar"`
	Online bool   `json:"online"`
}

func (h *Handler) CreateConversation(c *gin.Context) {
	var req createConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	conv, err := h.Store.CreateConversation(c.Request.Context(), req.Name, req.Avatar, req.Online)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.Created(c, gin.H{
		"id":           conv.ID,
		"conversation": conv,
	})
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	id := c.Param("id")
	if err := h.Store.DeleteConversation(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"id": id})
}

func (h *Handler) ListMessages(c *gin.Context) {
	id := c.Param("id")
	conv, ok := h.Store.Conversation(id)
	if !ok {
		h.fail(c, fmt.Errorf("%w: %q", chat.ErrNotFound, id))
		return
	}
	common.OK(c, gin.H{
		"conversation_id": id,
		"messages":        conv.Messages,
		"reply_pending":   conv.ReplyPending(),
	})
}

type sendMessageReq struct {
	Text string `json:"text"`
}

// SendMessage returns as soon as the user message is committed; the bot
// reply arrives later on the event stream.
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	id := c.Param("id")
	if !h.Store.HasConversation(id) {
		h.fail(c, fmt.Errorf("%w: %q", chat.ErrNotFound, id))
		return
	}
	msg, err := h.Store.AppendUserMessage(c.Request.Context(), id, req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.Created(c, gin.H{
		"conversation_id": id,
		"message":         msg,
	})
}

func (h *Handler) MarkRead(c *gin.Context) {
	id := c.Param("id")
	n, err := h.Store.MarkRead(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"conversation_id": id, "marked": n})
}

func (h *Handler) UnreadCount(c *gin.Context) {
	id := c.Param("id")
	n, err := h.Store.UnreadCount(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"conversation_id": id, "unread": n})
}

type switchActiveReq struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

func (h *Handler) SwitchActive(c *gin.Context) {
	var req switchActiveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.Store.SwitchActiveConversation(c.Request.Context(), req.ConversationID); err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"active_conversation_id": req.ConversationID})
}

func (h *Handler) ActiveConversation(c *gin.Context) {
	conv, err := h.Store.ActiveConversation()
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{
		"id":           conv.ID,
		"conversation": conv,
	})
}
