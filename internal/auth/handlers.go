package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mdudarev/antifraud/internal/validation"
)

// Handler provides HTTP endpoints for user management.
type Handler struct {
	service *Service
}

// NewHandler creates a new auth handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterPublicRoutes sets up routes that need no authentication.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.POST("/user", h.Register)
}

// RegisterAdminRoutes sets up administrator-only routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.DELETE("/user/:username", h.DeleteUser)
	r.PUT("/role", h.ChangeRole)
	r.PUT("/access", h.ChangeAccess)
}

// RegisterListRoute sets up the user list route (administrator and
// support).
func (h *Handler) RegisterListRoute(r *gin.RouterGroup) {
	r.GET("/list", h.ListUsers)
}

type registerRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type roleRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type accessRequest struct {
	Username  string `json:"username"`
	Operation string `json:"operation"`
}

// Register handles POST /api/auth/user
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("name", req.Name),
		validation.Required("username", req.Username),
		validation.Required("password", req.Password),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
		})
		return
	}

	user, err := h.service.Register(c.Request.Context(), req.Name, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "user_exists",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to register user",
		})
		return
	}

	c.JSON(http.StatusCreated, user)
}

// ListUsers handles GET /api/auth/list
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list users",
		})
		return
	}
	if users == nil {
		users = []*User{}
	}
	c.JSON(http.StatusOK, users)
}

// DeleteUser handles DELETE /api/auth/user/:username
func (h *Handler) DeleteUser(c *gin.Context) {
	username := c.Param("username")

	if err := h.service.Delete(c.Request.Context(), username); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to delete user",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username": username,
		"status":   "Deleted successfully!",
	})
}

// ChangeRole handles PUT /api/auth/role
func (h *Handler) ChangeRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	user, err := h.service.ChangeRole(c.Request.Context(), req.Username, Role(req.Role))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRole):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_role",
				"message": err.Error(),
			})
		case errors.Is(err, ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": err.Error(),
			})
		case errors.Is(err, ErrRoleAlreadyAssigned):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "role_assigned",
				"message": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to change role",
			})
		}
		return
	}

	c.JSON(http.StatusOK, user)
}

// ChangeAccess handles PUT /api/auth/access
func (h *Handler) ChangeAccess(c *gin.Context) {
	var req accessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	var locked bool
	switch req.Operation {
	case "LOCK":
		locked = true
	case "UNLOCK":
		locked = false
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_operation",
			"message": "operation must be LOCK or UNLOCK",
		})
		return
	}

	if err := h.service.SetAccess(c.Request.Context(), req.Username, locked); err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": err.Error(),
			})
		case errors.Is(err, ErrCannotLockAdmin):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "cannot_lock_admin",
				"message": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to change access",
			})
		}
		return
	}

	state := "unlocked"
	if locked {
		state = "locked"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": fmt.Sprintf("User %s %s!", req.Username, state),
	})
}
