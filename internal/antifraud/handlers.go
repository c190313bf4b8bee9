package antifraud

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mdudarev/antifraud/internal/logging"
	"github.com/mdudarev/antifraud/internal/validation"
)

// Handler provides HTTP endpoints for transaction evaluation and feedback.
type Handler struct {
	service *Service
}

// NewHandler creates a new antifraud handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterMerchantRoutes sets up routes available to merchants.
func (h *Handler) RegisterMerchantRoutes(r *gin.RouterGroup) {
	r.POST("/transaction", h.PostTransaction)
}

// RegisterSupportRoutes sets up routes available to support staff.
func (h *Handler) RegisterSupportRoutes(r *gin.RouterGroup) {
	r.PUT("/transaction", h.PutFeedback)
	r.GET("/history", h.GetHistory)
	r.GET("/history/:number", validation.CardNumberParamMiddleware(), h.GetHistoryByCard)
}

// transactionRequest is the request body for POST /api/antifraud/transaction.
type transactionRequest struct {
	Amount int64  `json:"amount"`
	IP     string `json:"ip"`
	Number string `json:"number"`
	Region string `json:"region"`
	Date   string `json:"date"`
}

// feedbackRequest is the request body for PUT /api/antifraud/transaction.
type feedbackRequest struct {
	TransactionID int64  `json:"transactionId"`
	Feedback      string `json:"feedback"`
}

// Timestamps are caller-supplied; accept RFC3339 and the zoneless variant.
var dateFormats = []string{time.RFC3339, "2006-01-02T15:04:05"}

func parseDate(value string) (time.Time, bool) {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// PostTransaction handles POST /api/antifraud/transaction
func (h *Handler) PostTransaction(c *gin.Context) {
	var req transactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	regionValues := make([]string, 0, len(Regions))
	for _, r := range Regions {
		regionValues = append(regionValues, string(r))
	}
	if errs := validation.Validate(
		validation.PositiveAmount("amount", req.Amount),
		validation.IPv4("ip", req.IP),
		validation.CardNumber("number", req.Number),
		validation.OneOf("region", req.Region, regionValues...),
		validation.Required("date", req.Date),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
			"fields":  errs,
		})
		return
	}

	date, ok := parseDate(req.Date)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": "date: must be an RFC3339 date-time",
		})
		return
	}

	tx, info, err := h.service.SubmitTransaction(c.Request.Context(), Input{
		Amount:     req.Amount,
		IP:         req.IP,
		CardNumber: req.Number,
		Region:     Region(req.Region),
		Date:       date,
	})
	if err != nil {
		logging.L(c.Request.Context()).Error("transaction evaluation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to evaluate transaction",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result": tx.Result,
		"info":   info,
	})
}

// PutFeedback handles PUT /api/antifraud/transaction
func (h *Handler) PutFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	feedback := Verdict(req.Feedback)
	if req.TransactionID <= 0 || !feedback.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": "feedback must be ALLOWED, MANUAL_PROCESSING or PROHIBITED",
		})
		return
	}

	tx, err := h.service.ApplyFeedback(c.Request.Context(), req.TransactionID, feedback)
	if err != nil {
		switch {
		case errors.Is(err, ErrTransactionNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": err.Error(),
			})
		case errors.Is(err, ErrFeedbackExists):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "feedback_exists",
				"message": err.Error(),
			})
		case errors.Is(err, ErrFeedbackUnprocessable):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "feedback_unprocessable",
				"message": err.Error(),
			})
		default:
			logging.L(c.Request.Context()).Error("feedback failed", "transaction_id", req.TransactionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to apply feedback",
			})
		}
		return
	}

	c.JSON(http.StatusOK, tx)
}

// GetHistory handles GET /api/antifraud/history
func (h *Handler) GetHistory(c *gin.Context) {
	txs, err := h.service.History(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load transaction history",
		})
		return
	}
	if txs == nil {
		txs = []*Transaction{}
	}
	c.JSON(http.StatusOK, txs)
}

// GetHistoryByCard handles GET /api/antifraud/history/:number
func (h *Handler) GetHistoryByCard(c *gin.Context) {
	number := c.Param("number")

	txs, err := h.service.HistoryByCard(c.Request.Context(), number)
	if err != nil {
		if errors.Is(err, ErrNoTransactionsForCard) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load transaction history",
		})
		return
	}
	c.JSON(http.StatusOK, txs)
}
