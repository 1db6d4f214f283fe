package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"voicelink-backend/pkg/jwt"
)

// AuthMiddleware creates a Gin middleware that validates JWT tokens.
// It checks for the Authorization header and validates the token.
// If valid, it sets user_id, username, and role in the Gin context.
func AuthMiddleware(jwtManager *jwt.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		tokenString := parts[1]

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		// Validate JWT audience claim
		if claims.Audience != "voicelink-api" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token audience"})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Next()
	}
}
