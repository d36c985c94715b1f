package httpt

import (
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           HR Notification Engine API
// @version         1.0
// @description     Multi-channel notification delivery engine for the HR platform
// @license.name    MIT-0
// @license.url     https://github.com/aws/mit-0
// @host            localhost:8080
// @BasePath        /
func (h *Handler) setupRoutes() {
	h.router.GET("/health", h.healthHandler)
	h.router.GET("/metrics", h.metricsHandler)

	v1 := h.router.Group("/api/v1")
	{
		v1.POST("/notifications", h.submitNotificationHandler)
		v1.GET("/notifications/:id/deliveries", h.getDeliveriesHandler)
		v1.POST("/notifications/:id/ack", h.ackHandler)

		v1.GET("/recipients/:id/inbox", h.getInboxHandler)
		v1.POST("/recipients/:id/inbox/:notification_id/read", h.readInboxHandler)

		admin := v1.Group("/admin")
		{
			admin.POST("/deliveries/:id/retry", h.forceRetryHandler)
			admin.POST("/deliveries/:id/expire", h.forceExpireHandler)
		}
	}

	h.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
