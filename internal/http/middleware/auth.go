package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/recipenow/recipenow-backend/internal/pkg/ctxutil"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

const headerUserID = "X-User-Id"

type AuthMiddleware struct {
	log *logger.Logger
}

func NewAuthMiddleware(baseLog *logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{log: baseLog.With("Middleware", "AuthMiddleware")}
}

// RequireUser resolves the caller from the X-User-Id header. The real token
// exchange happens at the gateway; by the time a request reaches this service
// the header carries a validated user id.
func (am *AuthMiddleware) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(headerUserID))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing user identity", "code": "unauthorized"},
			})
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil || userID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "invalid user identity", "code": "unauthorized"},
			})
			return
		}
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: userID})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
