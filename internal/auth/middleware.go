package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyUser is the gin context key holding the authenticated *User.
	ContextKeyUser = "authUser"
	// ContextKeyRole is the gin context key holding the authenticated user's role.
	ContextKeyRole = "authRole"
)

// BasicAuth validates HTTP basic-auth credentials and stores the
// authenticated user in the request context. Requests without valid
// credentials are rejected with 401.
func BasicAuth(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", `Basic realm="antifraud"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Basic authentication required",
			})
			return
		}

		user, err := s.Authenticate(c.Request.Context(), username, password)
		if err != nil {
			message := "Invalid username or password"
			if errors.Is(err, ErrUserLocked) {
				message = "User account is locked"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": message,
			})
			return
		}

		c.Set(ContextKeyUser, user)
		c.Set(ContextKeyRole, user.Role)
		c.Next()
	}
}

// RequireRole rejects authenticated requests whose user holds none of
// the given roles.
func RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(ContextKeyRole)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authentication required",
			})
			return
		}
		role, ok := value.(Role)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Invalid authentication state",
			})
			return
		}
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Insufficient role for this operation",
		})
	}
}

// UserFromContext returns the authenticated user set by BasicAuth.
func UserFromContext(c *gin.Context) (*User, bool) {
	value, exists := c.Get(ContextKeyUser)
	if !exists {
		return nil, false
	}
	user, ok := value.(*User)
	return user, ok
}
