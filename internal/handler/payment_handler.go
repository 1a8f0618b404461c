package handler

import (
	"errors"
	"net/http"

	"market/internal/models"
	"market/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentHandler struct {
	paymentSvc *service.PaymentService
	orderSvc   *service.OrderService
}

func NewPaymentHandler(paymentSvc *service.PaymentService, orderSvc *service.OrderService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc, orderSvc: orderSvc}
}

type createPaymentRequest struct {
	OrderNumber string `json:"order_number" binding:"required"`
	Gateway     string `json:"gateway" binding:"required"`
}

// Create opens a payment attempt for the order and hands back the gateway
// redirect URL.
func (h *PaymentHandler) Create(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orderSvc.GetByNumber(req.OrderNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if order.IsPaid {
		c.JSON(http.StatusConflict, gin.H{"error": "order already paid"})
		return
	}

	payment, err := h.paymentSvc.CreatePayment(order, req.Gateway, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payment creation failed"})
		return
	}

	result := h.paymentSvc.InitiatePayment(payment, order)
	if !result.Success {
		c.JSON(http.StatusBadGateway, gin.H{
			"payment_id": payment.PaymentID,
			"success":    false,
			"error":      result.Error,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"payment_id":  payment.PaymentID,
		"success":     true,
		"payment_url": result.PaymentURL,
	})
}

// Success is the customer's return landing after hosted checkout. The
// gateway state is checked independently of the webhook.
func (h *PaymentHandler) Success(c *gin.Context) {
	paymentID := c.Query("payment_id")
	if paymentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment_id is required"})
		return
	}

	payment, ok := h.lookup(c, paymentID)
	if !ok {
		return
	}

	result, err := h.paymentSvc.VerifyPayment(payment)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "verification failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payment_id": payment.PaymentID,
		"paid":       result.IsSuccessful,
		"status":     result.Status,
	})
}

// Cancel abandons a payment attempt that never completed.
func (h *PaymentHandler) Cancel(c *gin.Context) {
	payment, ok := h.lookup(c, c.Param("payment_id"))
	if !ok {
		return
	}

	if err := h.paymentSvc.CancelPayment(payment); err != nil {
		var stateErr *models.InvalidStateError
		if errors.As(err, &stateErr) {
			c.JSON(http.StatusConflict, gin.H{"error": stateErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cancel failed"})
		return
	}

	c.JSON(http.StatusOK, payment)
}

type refundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason" binding:"required"`
}

// Refund sends a refund to the gateway. Gateways that cannot refund over
// the API report a soft failure with instructions.
func (h *PaymentHandler) Refund(c *gin.Context) {
	payment, ok := h.lookup(c, c.Param("payment_id"))
	if !ok {
		return
	}
	if payment.Status != models.PaymentStatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "only completed payments can be refunded"})
		return
	}

	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.paymentSvc.RefundPayment(payment, req.Amount, req.Reason)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refund failed"})
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{
		"payment_id": payment.PaymentID,
		"success":    result.Success,
		"message":    result.Message,
	})
}

// Get returns one payment by its reference.
func (h *PaymentHandler) Get(c *gin.Context) {
	payment, ok := h.lookup(c, c.Param("payment_id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) lookup(c *gin.Context, paymentID string) (*models.Payment, bool) {
	payment, err := h.paymentSvc.GetByPaymentID(paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		}
		return nil, false
	}
	return payment, true
}
