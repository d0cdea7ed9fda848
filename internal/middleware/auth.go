package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/internal/auth"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

const (
	// IdentityContextKey stores the resolved client identity on the request
	IdentityContextKey = "client_identity"
)

// Auth validates the Authorization header against the credential store.
// Both signed tokens and raw api keys are accepted.
func Auth(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
			c.Abort()
			return
		}

		identity, err := svc.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired credentials"})
			c.Abort()
			return
		}

		c.Set(IdentityContextKey, identity)
		c.Next()
	}
}

// RequireAdmin restricts a route to clients on the admin allow-list. Must
// run after Auth.
func RequireAdmin(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := GetIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		if err := svc.RequireAdmin(identity); err != nil {
			if errors.Is(err, auth.ErrForbidden) {
				c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Authorization check failed"})
			}
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetIdentity returns the authenticated client identity from the request
// context.
func GetIdentity(c *gin.Context) (*models.ClientIdentity, bool) {
	v, exists := c.Get(IdentityContextKey)
	if !exists {
		return nil, false
	}
	identity, ok := v.(*models.ClientIdentity)
	return identity, ok
}
