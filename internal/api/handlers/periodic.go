package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rohenhonghyuan/7ma-web/internal/models"
	"github.com/rohenhonghyuan/7ma-web/internal/repository"
	"github.com/rohenhonghyuan/7ma-web/internal/service"
)

// CreatePeriodicTask 创建周期任务
func (h *Handler) CreatePeriodicTask(c *gin.Context) {
	var req models.PeriodicTaskRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	task, err := h.scheduler.Add(h.scanTaskFrom(c, req))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, task)
}

// ListPeriodicTasks 获取当前用户的所有周期任务
func (h *Handler) ListPeriodicTasks(c *gin.Context) {
	tasks := h.scheduler.TasksForUser(userIDFrom(c))
	if tasks == nil {
		tasks = []repository.ScanTask{}
	}
	c.JSON(http.StatusOK, tasks)
}

// UpdatePeriodicTask 更新周期任务，凭证强制换成最新的
func (h *Handler) UpdatePeriodicTask(c *gin.Context) {
	var req models.PeriodicTaskRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	task, err := h.scheduler.Update(c.Param("id"), userIDFrom(c), h.scanTaskFrom(c, req))
	if err != nil {
		h.respondPeriodicError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// DeletePeriodicTask 删除周期任务
func (h *Handler) DeletePeriodicTask(c *gin.Context) {
	if err := h.scheduler.Remove(c.Param("id"), userIDFrom(c)); err != nil {
		h.respondPeriodicError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: "Task removed"})
}

// scanTaskFrom 组装扫描定义，归属和凭证取自登录态
func (h *Handler) scanTaskFrom(c *gin.Context, req models.PeriodicTaskRequest) repository.ScanTask {
	return repository.ScanTask{
		UserID:         userIDFrom(c),
		Name:           req.Name,
		Cron:           req.Cron,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		LocationName:   req.LocationName,
		MinElectricity: req.MinElectricity,
		CarModelID:     req.CarModelID,
		MaxLoops:       req.MaxLoops,
		Token:          tokenFrom(c),
	}
}

// respondPeriodicError 所有权错误与不存在统一按 404 返回，
// 不向调用方暴露任务是否存在
func (h *Handler) respondPeriodicError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrTaskNotFound) || errors.Is(err, service.ErrPermissionDenied) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found or permission denied"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
