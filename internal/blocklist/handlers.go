package blocklist

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mdudarev/antifraud/internal/validation"
)

// Handler provides HTTP endpoints for blocklist management.
type Handler struct {
	service *Service
}

// NewHandler creates a new blocklist handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up blocklist routes on the given router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/stolencard", h.AddStolenCard)
	r.DELETE("/stolencard/:number", validation.CardNumberParamMiddleware(), h.RemoveStolenCard)
	r.GET("/stolencard", h.ListStolenCards)
	r.POST("/suspicious-ip", h.AddSuspiciousIP)
	r.DELETE("/suspicious-ip/:ip", validation.IPParamMiddleware(), h.RemoveSuspiciousIP)
	r.GET("/suspicious-ip", h.ListSuspiciousIPs)
}

type cardRequest struct {
	Number string `json:"number"`
}

type ipRequest struct {
	IP string `json:"ip"`
}

// AddStolenCard handles POST /api/antifraud/stolencard
func (h *Handler) AddStolenCard(c *gin.Context) {
	var req cardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(validation.CardNumber("number", req.Number)); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
		})
		return
	}

	card, err := h.service.AddStolenCard(c.Request.Context(), req.Number)
	if err != nil {
		if errors.Is(err, ErrCardExists) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "card_exists",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to add stolen card",
		})
		return
	}

	c.JSON(http.StatusOK, card)
}

// RemoveStolenCard handles DELETE /api/antifraud/stolencard/:number
func (h *Handler) RemoveStolenCard(c *gin.Context) {
	number := c.Param("number")

	if err := h.service.RemoveStolenCard(c.Request.Context(), number); err != nil {
		if errors.Is(err, ErrCardNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to remove stolen card",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": fmt.Sprintf("Card %s successfully removed!", number),
	})
}

// ListStolenCards handles GET /api/antifraud/stolencard
func (h *Handler) ListStolenCards(c *gin.Context) {
	cards, err := h.service.ListStolenCards(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list stolen cards",
		})
		return
	}
	if cards == nil {
		cards = []*StolenCard{}
	}
	c.JSON(http.StatusOK, cards)
}

// AddSuspiciousIP handles POST /api/antifraud/suspicious-ip
func (h *Handler) AddSuspiciousIP(c *gin.Context) {
	var req ipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(validation.IPv4("ip", req.IP)); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
		})
		return
	}

	entry, err := h.service.AddSuspiciousIP(c.Request.Context(), req.IP)
	if err != nil {
		if errors.Is(err, ErrIPExists) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "ip_exists",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to add suspicious ip",
		})
		return
	}

	c.JSON(http.StatusOK, entry)
}

// RemoveSuspiciousIP handles DELETE /api/antifraud/suspicious-ip/:ip
func (h *Handler) RemoveSuspiciousIP(c *gin.Context) {
	ip := c.Param("ip")

	if err := h.service.RemoveSuspiciousIP(c.Request.Context(), ip); err != nil {
		if errors.Is(err, ErrIPNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to remove suspicious ip",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": fmt.Sprintf("IP %s successfully removed!", ip),
	})
}

// ListSuspiciousIPs handles GET /api/antifraud/suspicious-ip
func (h *Handler) ListSuspiciousIPs(c *gin.Context) {
	ips, err := h.service.ListSuspiciousIPs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list suspicious ips",
		})
		return
	}
	if ips == nil {
		ips = []*SuspiciousIP{}
	}
	c.JSON(http.StatusOK, ips)
}
