package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	UserContextKey  = "userID"
	EmailContextKey = "userEmail"
	RoleContextKey  = "userRole"
)

// AuthMiddleware trusts the identity headers the gateway sets after token
// verification; this service never sees credentials.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if _, err := uuid.Parse(userID); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
			return
		}
		c.Set(UserContextKey, userID)
		c.Set(EmailContextKey, c.GetHeader("X-User-Email"))
		c.Set(RoleContextKey, c.GetHeader("X-User-Role"))
		c.Next()
	}
}

func GetUserID(c *gin.Context) (uuid.UUID, error) {
	if val, ok := c.Get(UserContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return uuid.Parse(id)
		}
	}
	return uuid.Nil, errors.New("user ID not found in context")
}

func GetUserEmail(c *gin.Context) string {
	if val, ok := c.Get(EmailContextKey); ok {
		if email, ok := val.(string); ok {
			return email
		}
	}
	return ""
}

func IsAdmin(c *gin.Context) bool {
	if val, ok := c.Get(RoleContextKey); ok {
		if role, ok := val.(string); ok {
			return role == "admin"
		}
	}
	return false
}
