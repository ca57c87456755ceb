package grading

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup, h *Handler) {
	router.POST("/grading/:taskId/requeue", h.RequeueTask)
}
