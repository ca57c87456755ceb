package answer

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup, h *Handler) {
	grading := router.Group("/answers/grading")
	{
		grading.POST("", h.SubmitGrading)
		grading.GET("/:taskId", h.GetGradingStatus)
		grading.POST("/:taskId/retry", h.RetryGrading)
	}
}
