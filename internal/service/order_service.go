package service

import (
	"fmt"
	"time"

	"market/internal/metrics"
	"market/internal/models"

	"github.com/shopspring/decimal"
)

// OrderStore is the persistence surface the order service needs. The
// multi-write methods are atomic in the GORM implementation.
type OrderStore interface {
	CreateWithItems(o *models.Order, history *models.OrderStatusHistory) error
	GetByID(id uint) (*models.Order, error)
	GetByNumber(number string) (*models.Order, error)
	List(limit, offset int) ([]models.Order, error)
	UpdateStatus(o *models.Order, history *models.OrderStatusHistory) error
	Cancel(o *models.Order, history *models.OrderStatusHistory) error
	MarkPaid(number string) (*models.Order, error)
}

type ProductStore interface {
	GetByIDs(ids []uint) ([]models.Product, error)
}

type CheckoutItem struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,min=1"`
}

// CreateOrderInput carries checkout data copied from the caller's cart.
// The cart itself is cleared by the caller afterwards.
type CreateOrderInput struct {
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	DeliveryAddress string
	DeliveryCity    string
	DeliveryRegion  string
	PaymentMethod   string
	CustomerNotes   string
	Currency        string
	Items           []CheckoutItem
}

// legalTransitions is consulted only when strict status flow is enabled.
// The permissive default preserves admin overrides.
var legalTransitions = map[string][]string{
	models.OrderStatusPending:  {models.OrderStatusAccepted, models.OrderStatusCancelled},
	models.OrderStatusAccepted: {models.OrderStatusPacked, models.OrderStatusCancelled},
	models.OrderStatusPacked:   {models.OrderStatusOnTheWay, models.OrderStatusCancelled},
	models.OrderStatusOnTheWay: {models.OrderStatusDelivered},
}

var knownStatuses = map[string]bool{
	models.OrderStatusPending:   true,
	models.OrderStatusAccepted:  true,
	models.OrderStatusPacked:    true,
	models.OrderStatusOnTheWay:  true,
	models.OrderStatusDelivered: true,
	models.OrderStatusCancelled: true,
}

type OrderService struct {
	orders   OrderStore
	products ProductStore
	notifier Notifier
	strict   bool
}

func NewOrderService(orders OrderStore, products ProductStore, notifier Notifier, strictStatusFlow bool) *OrderService {
	return &OrderService{orders: orders, products: products, notifier: notifier, strict: strictStatusFlow}
}

// CreateOrder builds the order from checkout items, snapshotting product
// name, SKU and price so later catalog edits never touch it. Stock is
// decremented in the same transaction that persists the order.
func (s *OrderService) CreateOrder(input CreateOrderInput) (*models.Order, error) {
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("order must contain at least one item")
	}

	ids := make([]uint, 0, len(input.Items))
	for _, item := range input.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.GetByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	subtotal := decimal.Zero
	items := make([]models.OrderItem, 0, len(input.Items))
	for _, ci := range input.Items {
		product, ok := byID[ci.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %d not found", ci.ProductID)
		}
		if product.Stock < ci.Quantity {
			return nil, models.ErrInsufficientStock
		}
		item := models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			ProductSKU:  product.SKU,
			UnitPrice:   product.Price,
			Quantity:    ci.Quantity,
		}
		item.Subtotal = item.GetSubtotal()
		subtotal = subtotal.Add(item.Subtotal)
		items = append(items, item)
	}

	deliveryFee := deliveryFeeFor(input.DeliveryCity)
	taxAmount := decimal.Zero
	discountAmount := decimal.Zero
	total := subtotal.Add(deliveryFee).Add(taxAmount).Sub(discountAmount)

	order := &models.Order{
		Status:          models.OrderStatusPending,
		CustomerName:    input.CustomerName,
		CustomerEmail:   input.CustomerEmail,
		CustomerPhone:   input.CustomerPhone,
		DeliveryAddress: input.DeliveryAddress,
		DeliveryCity:    input.DeliveryCity,
		DeliveryRegion:  input.DeliveryRegion,
		Currency:        input.Currency,
		Subtotal:        subtotal,
		DeliveryFee:     deliveryFee,
		TaxAmount:       taxAmount,
		DiscountAmount:  discountAmount,
		TotalAmount:     total,
		PaymentMethod:   input.PaymentMethod,
		CustomerNotes:   input.CustomerNotes,
		Items:           items,
	}

	history := &models.OrderStatusHistory{
		ToStatus:  models.OrderStatusPending,
		ChangedBy: input.CustomerEmail,
	}
	if err := s.orders.CreateWithItems(order, history); err != nil {
		return nil, err
	}

	metrics.OrdersCreatedTotal.Inc()
	s.notifier.OrderCreated(order)
	return order, nil
}

// UpdateStatus records the transition, stamps delivered_at when the order
// reaches delivered and always appends a history row, even for a no-op
// transition. With strict flow disabled any known status is accepted.
// Cash and card orders settle on delivery, so reaching delivered also
// marks them paid.
func (s *OrderService) UpdateStatus(order *models.Order, newStatus, actor, notes string) error {
	if !knownStatuses[newStatus] {
		return fmt.Errorf("unknown order status: %s", newStatus)
	}
	if s.strict && order.Status != newStatus && !transitionAllowed(order.Status, newStatus) {
		return &models.InvalidStateError{Current: order.Status, Attempted: newStatus}
	}

	fromStatus := order.Status
	order.Status = newStatus
	if newStatus == models.OrderStatusDelivered {
		now := time.Now()
		order.DeliveredAt = &now
	}

	history := &models.OrderStatusHistory{
		FromStatus: fromStatus,
		ToStatus:   newStatus,
		ChangedBy:  actor,
		Notes:      notes,
	}
	if err := s.orders.UpdateStatus(order, history); err != nil {
		return err
	}

	metrics.OrderStatusTransitionsTotal.WithLabelValues(newStatus).Inc()
	s.notifier.OrderStatusChanged(order, fromStatus)

	if newStatus == models.OrderStatusDelivered && settlesOnDelivery(order.PaymentMethod) && !order.IsPaid {
		paid, err := s.MarkAsPaid(order.OrderNumber)
		if err != nil {
			return err
		}
		order.IsPaid = paid.IsPaid
		order.PaidAt = paid.PaidAt
	}
	return nil
}

// Cancel is the one always-guarded transition: only pending, accepted and
// packed orders may be cancelled. Each item's quantity goes back to
// product stock, compensating the decrement done at creation.
func (s *OrderService) Cancel(order *models.Order, actor, reason string) error {
	if !order.CanBeCancelled() {
		return &models.InvalidStateError{Current: order.Status, Attempted: models.OrderStatusCancelled}
	}

	fromStatus := order.Status
	now := time.Now()
	order.Status = models.OrderStatusCancelled
	order.CancelledBy = actor
	order.CancellationReason = reason
	order.CancelledAt = &now

	history := &models.OrderStatusHistory{
		FromStatus: fromStatus,
		ToStatus:   models.OrderStatusCancelled,
		ChangedBy:  actor,
		Notes:      reason,
	}
	if err := s.orders.Cancel(order, history); err != nil {
		return err
	}

	metrics.OrdersCancelledTotal.Inc()
	s.notifier.OrderStatusChanged(order, fromStatus)
	return nil
}

// MarkAsPaid flips the paid flag, once. Repeat calls keep the original
// paid timestamp.
func (s *OrderService) MarkAsPaid(orderNumber string) (*models.Order, error) {
	order, err := s.orders.MarkPaid(orderNumber)
	if err != nil {
		return nil, err
	}
	s.notifier.OrderPaid(order)
	return order, nil
}

func (s *OrderService) GetByID(id uint) (*models.Order, error) {
	return s.orders.GetByID(id)
}

func (s *OrderService) GetByNumber(number string) (*models.Order, error) {
	return s.orders.GetByNumber(number)
}

func (s *OrderService) List(limit, offset int) ([]models.Order, error) {
	return s.orders.List(limit, offset)
}

// settlesOnDelivery reports whether the payment method is collected by
// the courier rather than through a gateway.
func settlesOnDelivery(method string) bool {
	return method == models.PaymentMethodCash || method == models.PaymentMethodCard
}

func transitionAllowed(from, to string) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// deliveryFeeFor prices delivery by city: flat 20000 for the capital,
// 35000 elsewhere.
func deliveryFeeFor(city string) decimal.Decimal {
	switch city {
	case "Tashkent", "tashkent", "Toshkent", "toshkent":
		return decimal.NewFromInt(20000)
	default:
		return decimal.NewFromInt(35000)
	}
}
