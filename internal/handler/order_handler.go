package handler

import (
	"errors"
	"net/http"
	"strconv"

	"market/internal/models"
	"market/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type OrderHandler struct {
	orderSvc *service.OrderService
	currency string
}

func NewOrderHandler(orderSvc *service.OrderService, currency string) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc, currency: currency}
}

type createOrderRequest struct {
	CustomerName    string                 `json:"customer_name" binding:"required"`
	CustomerEmail   string                 `json:"customer_email" binding:"required,email"`
	CustomerPhone   string                 `json:"customer_phone" binding:"required"`
	DeliveryAddress string                 `json:"delivery_address" binding:"required"`
	DeliveryCity    string                 `json:"delivery_city" binding:"required"`
	DeliveryRegion  string                 `json:"delivery_region"`
	PaymentMethod   string                 `json:"payment_method" binding:"required"`
	CustomerNotes   string                 `json:"customer_notes"`
	Items           []service.CheckoutItem `json:"items" binding:"required,min=1,dive"`
}

// Create places an order from the submitted items.
func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orderSvc.CreateOrder(service.CreateOrderInput{
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryCity:    req.DeliveryCity,
		DeliveryRegion:  req.DeliveryRegion,
		PaymentMethod:   req.PaymentMethod,
		CustomerNotes:   req.CustomerNotes,
		Currency:        h.currency,
		Items:           req.Items,
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientStock) {
			c.JSON(http.StatusConflict, gin.H{"error": "insufficient stock"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, order)
}

// Get looks an order up by numeric id or by order number.
func (h *OrderHandler) Get(c *gin.Context) {
	order, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	orders, err := h.orderSvc.List(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Actor  string `json:"actor" binding:"required"`
	Notes  string `json:"notes"`
}

// UpdateStatus moves the order to a new status.
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	order, ok := h.lookup(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.orderSvc.UpdateStatus(order, req.Status, req.Actor, req.Notes); err != nil {
		var stateErr *models.InvalidStateError
		if errors.As(err, &stateErr) {
			c.JSON(http.StatusConflict, gin.H{"error": stateErr.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, order)
}

type cancelOrderRequest struct {
	Actor  string `json:"actor" binding:"required"`
	Reason string `json:"reason"`
}

// Cancel cancels the order and restores its items to stock.
func (h *OrderHandler) Cancel(c *gin.Context) {
	order, ok := h.lookup(c)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.orderSvc.Cancel(order, req.Actor, req.Reason); err != nil {
		var stateErr *models.InvalidStateError
		if errors.As(err, &stateErr) {
			c.JSON(http.StatusConflict, gin.H{"error": stateErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cancel failed"})
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) lookup(c *gin.Context) (*models.Order, bool) {
	ref := c.Param("id")

	var order *models.Order
	var err error
	if id, convErr := strconv.ParseUint(ref, 10, 32); convErr == nil {
		order, err = h.orderSvc.GetByID(uint(id))
	} else {
		order, err = h.orderSvc.GetByNumber(ref)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		}
		return nil, false
	}
	return order, true
}
