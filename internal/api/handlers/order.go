package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rohenhonghyuan/7ma-web/internal/models"
)

// CreateOrder 创建订单（预约车辆，不开锁）
func (h *Handler) CreateOrder(c *gin.Context) {
	var req models.OrderRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	message, err := clientFrom(c).OrderCar(c.Request.Context(), req.CarNumber)
	if err != nil {
		h.respondAPIError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: message})
}

// GetCurrentOrder 获取当前骑行订单。没有进行中的订单很常见，返回 404。
func (h *Handler) GetCurrentOrder(c *gin.Context) {
	order, err := clientFrom(c).CurrentCyclingOrder(c.Request.Context())
	if err != nil {
		h.respondAPIError(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// UnlockCar 解锁车辆（控制通道）
func (h *Handler) UnlockCar(c *gin.Context) {
	if err := clientFrom(c).UnlockCar(c.Request.Context()); err != nil {
		h.respondAPIError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: "Unlock command sent"})
}

// TemporaryLockCar 临时锁车（控制通道）
func (h *Handler) TemporaryLockCar(c *gin.Context) {
	if err := clientFrom(c).TemporaryLockCar(c.Request.Context()); err != nil {
		h.respondAPIError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: "Temporary lock command sent"})
}

// ReturnCar 还车
func (h *Handler) ReturnCar(c *gin.Context) {
	cmd, err := clientFrom(c).BackCar(c.Request.Context())
	if err != nil {
		h.respondAPIError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: fmt.Sprintf("Return car command sent: %s", cmd)})
}

// GetUnpaidOrder 获取未支付的订单
func (h *Handler) GetUnpaidOrder(c *gin.Context) {
	order, err := clientFrom(c).GetUnpaidOrder(c.Request.Context())
	if err != nil {
		h.respondAPIError(c, http.StatusBadRequest, err)
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No unpaid order found"})
		return
	}
	c.JSON(http.StatusOK, order)
}

// PayOrder 余额支付指定订单
func (h *Handler) PayOrder(c *gin.Context) {
	var req models.PayRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := clientFrom(c).PayWithBalance(c.Request.Context(), req.OrderID, req.CreatedAt); err != nil {
		h.respondAPIError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: "Payment succeeded"})
}

// PayUnpaidOrder 查找并支付未支付订单
func (h *Handler) PayUnpaidOrder(c *gin.Context) {
	client := clientFrom(c)

	order, err := client.GetUnpaidOrder(c.Request.Context())
	if err != nil {
		h.respondAPIError(c, http.StatusBadRequest, err)
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No unpaid order to pay"})
		return
	}

	if err := client.PayWithBalance(c.Request.Context(), order.OrderID, order.CreatedAt); err != nil {
		h.respondAPIError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: "Payment succeeded"})
}

// Signin 每日签到
func (h *Handler) Signin(c *gin.Context) {
	desc, err := clientFrom(c).Signin(c.Request.Context())
	if err != nil {
		h.respondAPIError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: desc})
}
