package middleware

import (
	"strings"

	"oficiogen/backend/pkg/errors"
	"oficiogen/backend/pkg/jwt"
	"oficiogen/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ProfileAuth resolves the profile token from the Authorization header,
// or from the token query parameter for websocket upgrades
func ProfileAuth(jwtService *jwt.Service, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authorization header is required"))
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			log.Warn("Invalid profile token", "error", err.Error())
			c.Error(errors.NewUnauthorizedError("INVALID_TOKEN", "Invalid or expired token"))
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set(ProfileIDContextKey, claims.ProfileID)
		c.Request = c.Request.WithContext(WithProfileID(c.Request.Context(), claims.ProfileID))

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
			return strings.TrimSpace(header[7:])
		}
		return strings.TrimSpace(header)
	}
	return c.Query("token")
}
