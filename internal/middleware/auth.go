package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"inpeak-backend/internal/utils"
)

const (
	ContextMemberID = "member_id"
	ContextRole     = "role"
)

// AuthMiddleware validates the bearer token and stores the member ID and
// role in the gin context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := utils.ExtractToken(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, err.Error()))
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(secret, tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Invalid or expired token"))
			c.Abort()
			return
		}

		c.Set(ContextMemberID, claims.MemberID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// MemberID returns the authenticated member. It is only valid behind AuthMiddleware.
func MemberID(c *gin.Context) uint {
	return c.GetUint(ContextMemberID)
}
