package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rohenhonghyuan/7ma-web/internal/api/sevenmate"
	"github.com/rohenhonghyuan/7ma-web/internal/models"
)

// GetSMSCode 获取短信验证码
func (h *Handler) GetSMSCode(c *gin.Context) {
	var req models.PhoneRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	client := sevenmate.NewClient(h.cfg.APIBaseURL)
	defer client.Close()

	message, err := client.GetSMSCode(c.Request.Context(), req.Phone)
	if err != nil {
		h.respondAPIError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: message})
}

// Login 手机号+验证码登录
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	client := sevenmate.NewClient(h.cfg.APIBaseURL)
	defer client.Close()

	token, expiredAt, err := client.Login(c.Request.Context(), req.Phone, req.Code)
	if err != nil {
		h.respondAPIError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, models.TokenResponse{Token: token, ExpiredAt: expiredAt})
}

// TokenLogin 用已有 Token 登录（实际是验证 Token 有效性）
func (h *Handler) TokenLogin(c *gin.Context) {
	var req models.TokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	client, err := h.newClient(req.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}
	defer client.Close()

	if _, err := client.GetUserInfo(c.Request.Context(), false); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: "Token is valid"})
}

// respondAPIError 把远端拒绝映射为 HTTP 响应
func (h *Handler) respondAPIError(c *gin.Context, status int, err error) {
	var apiErr *sevenmate.APIError
	if errors.As(err, &apiErr) {
		c.JSON(status, gin.H{"error": apiErr.Message})
		return
	}
	h.logger.Error("Request to remote service failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Remote service request failed"})
}
