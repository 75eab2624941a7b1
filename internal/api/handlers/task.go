package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rohenhonghyuan/7ma-web/internal/models"
	"github.com/rohenhonghyuan/7ma-web/internal/service"
)

// CreateReservationTask 创建后台预约任务
func (h *Handler) CreateReservationTask(c *gin.Context) {
	var req models.OrderRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	userID := userIDFrom(c)
	_, err := h.registry.Create(userID, req.CarNumber, tokenFrom(c), h.cfg.DefaultMaxLoops)
	if err != nil {
		if errors.Is(err, service.ErrTaskConflict) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("An active task already exists for car %s", req.CarNumber)})
			return
		}
		h.logger.Error("Failed to create reservation task",
			zap.String("user_id", userID),
			zap.String("car_number", req.CarNumber),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task"})
		return
	}

	c.JSON(http.StatusOK, models.MessageResponse{Message: fmt.Sprintf("Reservation task created for car %s", req.CarNumber)})
}

// ListReservationTasks 获取当前用户的所有后台任务状态，
// 含已结束的，前端需要展示最终状态
func (h *Handler) ListReservationTasks(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List(userIDFrom(c)))
}

// StopReservationTask 停止正在运行的后台任务
func (h *Handler) StopReservationTask(c *gin.Context) {
	carNumber := c.Param("car_number")

	if err := h.registry.Stop(userIDFrom(c), carNumber); err != nil {
		if errors.Is(err, service.ErrNoActiveTask) {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No active task for car %s", carNumber)})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stop task"})
		return
	}

	c.JSON(http.StatusOK, models.MessageResponse{Message: fmt.Sprintf("Stop signal sent to task for car %s", carNumber)})
}
