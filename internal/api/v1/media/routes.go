package media

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup, h *Handler) {
	router.POST("/media/presigned-url", h.CreatePresignedURL)
}
