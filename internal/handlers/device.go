package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/deviceserver/internal/models"
	"github.com/imyashkale/deviceserver/internal/repository"
	"github.com/imyashkale/deviceserver/internal/services"
)

// DeviceTaskHandler handles device-association task requests
type DeviceTaskHandler struct {
	service *services.AssociationService
}

// NewDeviceTaskHandler creates a new device task handler
func NewDeviceTaskHandler(service *services.AssociationService) *DeviceTaskHandler {
	return &DeviceTaskHandler{
		service: service,
	}
}

// CreateTask handles creating a new device-association task. The
// response is a Waiting snapshot; processing happens asynchronously.
func (h *DeviceTaskHandler) CreateTask(c *gin.Context) {
	groupName := c.Param("group_name")

	var req models.CreateDeviceTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": err.Error(),
		})
		return
	}

	task, err := h.service.CreateDeviceAssociationTask(c.Request.Context(), groupName, req.ToDomain())
	if err != nil {
		h.writeError(c, err, "Failed to create device association task")
		return
	}

	c.JSON(http.StatusAccepted, task.ToResponse())
}

// GetTask handles retrieving a task by group name and task ID
func (h *DeviceTaskHandler) GetTask(c *gin.Context) {
	groupName := c.Param("group_name")
	taskID := c.Param("task_id")

	task, err := h.service.GetDeviceAssociationTask(c.Request.Context(), groupName, taskID)
	if err != nil {
		h.writeError(c, err, "Failed to retrieve device association task")
		return
	}

	c.JSON(http.StatusOK, task.ToResponse())
}

// GetDevice handles retrieving a single device-association record
func (h *DeviceTaskHandler) GetDevice(c *gin.Context) {
	thingName := c.Param("device_id")

	device, err := h.service.GetDevice(c.Request.Context(), thingName)
	if err != nil {
		h.writeError(c, err, "Failed to retrieve device")
		return
	}

	c.JSON(http.StatusOK, device)
}

// writeError maps service errors onto HTTP responses
func (h *DeviceTaskHandler) writeError(c *gin.Context, err error, message string) {
	var validation *services.ValidationError
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": validation.Message,
		})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Resource not found",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": message,
		})
	}
}
