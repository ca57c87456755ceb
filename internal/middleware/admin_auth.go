package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"inpeak-backend/internal/utils"
)

// AdminAuthMiddleware lets only admin tokens through. It must run after AuthMiddleware.
func AdminAuthMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != "admin" {
			log.Warn("unauthorized admin access attempt",
				zap.Uint("member_id", MemberID(c)),
				zap.String("path", c.Request.URL.Path))
			c.JSON(http.StatusForbidden, utils.NewErrorResponse(http.StatusForbidden, "Forbidden: Admins only"))
			c.Abort()
			return
		}
		c.Next()
	}
}
