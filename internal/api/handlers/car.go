package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetSurroundingCars 获取周围车辆
func (h *Handler) GetSurroundingCars(c *gin.Context) {
	latitude, err1 := strconv.ParseFloat(c.Query("latitude"), 64)
	longitude, err2 := strconv.ParseFloat(c.Query("longitude"), 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid latitude/longitude"})
		return
	}

	cars, err := clientFrom(c).GetSurroundingCars(c.Request.Context(), longitude, latitude)
	if err != nil {
		h.respondAPIError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, cars)
}

// GetCarInfo 获取车辆详细信息（含位置）
func (h *Handler) GetCarInfo(c *gin.Context) {
	car, err := clientFrom(c).GetCarInfo(c.Request.Context(), c.Param("number"), true)
	if err != nil {
		h.respondAPIError(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, car)
}
