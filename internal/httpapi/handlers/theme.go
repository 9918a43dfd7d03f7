package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/hackchat/internal/chat"
	"github.com/suPer8Hu/hackchat/internal/common"
)

type setThemeReq struct {
	Theme string `json:"theme" binding:"required"`
}

func (h *Handler) SetTheme(c *gin.Context) {
	var req setThemeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.Store.SetTheme(c.Request.Context(), chat.Theme(req.Theme)); err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"theme": req.Theme})
}

func (h *Handler) ToggleTheme(c *gin.Context) {
	common.OK(c, gin.H{"theme": h.Store.ToggleTheme(c.Request.Context())})
}
