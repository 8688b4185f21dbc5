package router

import (
	"github.com/gin-gonic/gin"
	"github.com/imyashkale/deviceserver/internal/handlers"
	"github.com/imyashkale/deviceserver/internal/middleware"
)

// Setup configures and returns the application router
func Setup(
	healthHandler *handlers.HealthHandler,
	taskHandler *handlers.DeviceTaskHandler,
) *gin.Engine {

	router := gin.Default()

	// Apply CORS middleware globally
	router.Use(middleware.CORS())

	v1 := router.Group("/api/v1")

	// Health check
	v1.GET("/health", healthHandler.Check)

	// Device association routes
	groups := v1.Group("/groups")
	{
		groups.POST("/:group_name/device-tasks", taskHandler.CreateTask)
		groups.GET("/:group_name/device-tasks/:task_id", taskHandler.GetTask)
	}

	devices := v1.Group("/devices")
	{
		devices.GET("/:device_id", taskHandler.GetDevice)
	}

	return router
}
