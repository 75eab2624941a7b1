package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetUserInfo 获取当前登录用户的信息（含信用分）
func (h *Handler) GetUserInfo(c *gin.Context) {
	user, err := clientFrom(c).GetUserInfo(c.Request.Context(), true)
	if err != nil {
		h.respondAPIError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
